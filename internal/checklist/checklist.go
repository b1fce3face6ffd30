// Package checklist seeds requirement checklists and derives completion progress from them.
package checklist

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
)

// MaxItems bounds the size of a checklist accepted from clients.
const MaxItems = 200

const opValidate = "checklist.validate"

// Item is one requirement and whether the user has completed it.
type Item struct {
	Item    string `json:"item"`
	Checked bool   `json:"checked"`
}

// UnmarshalJSON accepts the legacy "text" key in place of "item".
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Item    *string `json:"item"`
		Text    *string `json:"text"`
		Checked bool    `json:"checked"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Item != nil:
		i.Item = *raw.Item
	case raw.Text != nil:
		i.Item = *raw.Text
	default:
		i.Item = ""
	}
	i.Checked = raw.Checked
	return nil
}

// Checklist is an ordered sequence of items.
type Checklist []Item

// Seed builds an unchecked checklist with one item per requirement, preserving order.
func Seed(requirements []string) Checklist {
	items := make(Checklist, 0, len(requirements))
	for _, requirement := range requirements {
		items = append(items, Item{Item: requirement, Checked: false})
	}
	return items
}

// CheckedCount returns how many items are checked.
func (c Checklist) CheckedCount() int {
	count := 0
	for _, item := range c {
		if item.Checked {
			count++
		}
	}
	return count
}

// ComputeProgress returns the completion percentage rounded half-up, or 0 for an empty checklist.
//
// The rounding is done in integers: floor(100k/n + 1/2) == (200k + n) / 2n.
func ComputeProgress(items Checklist) int {
	total := len(items)
	if total == 0 {
		return 0
	}
	checked := items.CheckedCount()
	return (200*checked + total) / (2 * total)
}

// Validate reports a validation error when the checklist is oversized or has blank items.
func Validate(items Checklist) error {
	if len(items) > MaxItems {
		return apperr.Validation(opValidate, "too_many_items", map[string]string{
			"checklist": fmt.Sprintf("at most %d items allowed", MaxItems),
		})
	}
	for index, item := range items {
		if strings.TrimSpace(item.Item) == "" {
			return apperr.Validation(opValidate, "blank_item", map[string]string{
				fmt.Sprintf("checklist[%d].item", index): "required",
			})
		}
	}
	return nil
}
