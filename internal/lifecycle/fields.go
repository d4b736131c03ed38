package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/entity"
)

func applyPatch(j *entity.Job, p entity.JobPatch) {
	if p.Customer != nil {
		j.Customer = strings.TrimSpace(*p.Customer)
	}
	if p.Product != nil {
		j.Product = strings.TrimSpace(*p.Product)
	}
	if p.Priority != nil {
		j.Priority = *p.Priority
	}
	if p.SIQty != nil {
		j.SIQty = *p.SIQty
	}
	if p.JobQty != nil {
		j.JobQty = *p.JobQty
	}
	if p.Remark != nil {
		j.Remark = strings.TrimSpace(*p.Remark)
	}
	if p.StartDate != nil {
		j.StartDate = *p.StartDate
	}
	if p.DueDate != nil {
		j.DueDate = *p.DueDate
	}
	if p.JobsheetNo != nil {
		j.JobsheetNo = strings.TrimSpace(*p.JobsheetNo)
	}
	if p.ReferenceNo != nil {
		j.ReferenceNo = strings.TrimSpace(*p.ReferenceNo)
	}
}

func validateFields(j *entity.Job) error {
	v := common.NewValidator()
	v.Field("customer", j.Customer, common.Required)
	v.Field("product", j.Product, common.Required)
	v.Field("priority", string(j.Priority), common.OneOf(constants.PriorityStrings()...))
	v.Field("siQty", j.SIQty, common.Positive)
	v.Field("jobQty", j.JobQty, common.Positive)
	v.Field("startDate", j.StartDate, common.Required)
	v.Field("dueDate", j.DueDate, common.Required)
	v.Check(!j.DueDate.Before(j.StartDate), "dueDate", j.DueDate.Format(dateLayout), "must not be before startDate")
	return v.Err()
}

// diffFields returns the changed descriptive fields as before/after maps.
func diffFields(before, after *entity.Job) (map[string]any, map[string]any) {
	oldV := map[string]any{}
	newV := map[string]any{}
	add := func(name string, a, b any, changed bool) {
		if changed {
			oldV[name] = a
			newV[name] = b
		}
	}
	add("customer", before.Customer, after.Customer, before.Customer != after.Customer)
	add("product", before.Product, after.Product, before.Product != after.Product)
	add("priority", before.Priority, after.Priority, before.Priority != after.Priority)
	add("siQty", before.SIQty, after.SIQty, before.SIQty != after.SIQty)
	add("jobQty", before.JobQty, after.JobQty, before.JobQty != after.JobQty)
	add("remark", before.Remark, after.Remark, before.Remark != after.Remark)
	add("startDate", before.StartDate.Format(dateLayout), after.StartDate.Format(dateLayout), !before.StartDate.Equal(after.StartDate))
	add("dueDate", before.DueDate.Format(dateLayout), after.DueDate.Format(dateLayout), !before.DueDate.Equal(after.DueDate))
	add("jobsheetNo", before.JobsheetNo, after.JobsheetNo, before.JobsheetNo != after.JobsheetNo)
	add("referenceNo", before.ReferenceNo, after.ReferenceNo, before.ReferenceNo != after.ReferenceNo)
	return oldV, newV
}

func describeDiff(newV map[string]any) string {
	if len(newV) == 0 {
		return "No field changes"
	}
	names := make([]string, 0, len(newV))
	for k := range newV {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("Updated %s", strings.Join(names, ", "))
}
