package invoice

import (
	"regexp"
	"strings"
)

// Merge overlays a revised draft on the previous one. Fields the revision
// leaves absent carry over unchanged; present fields overwrite.
func Merge(prev, next Draft) Draft {
	out := prev
	if next.Amount.Valid {
		out.Amount = next.Amount
	}
	if next.Description != nil {
		out.Description = next.Description
	}
	if next.Payer != nil {
		out.Payer = next.Payer
	}
	if next.Recipient != nil {
		out.Recipient = next.Recipient
	}
	if next.WorkingHours != nil {
		out.WorkingHours = next.WorkingHours
	}
	if next.AssumedFields != nil {
		out.AssumedFields = next.AssumedFields
	}
	out.PaymentStatus = PaymentStatusNotPaid
	return out
}

// ChangedFields lists the fields whose values differ between a and b.
func ChangedFields(a, b Draft) []string {
	var changed []string
	if a.Amount.Valid != b.Amount.Valid || (a.Amount.Valid && !a.Amount.Decimal.Equal(b.Amount.Decimal)) {
		changed = append(changed, FieldAmount)
	}
	if deref(a.Description) != deref(b.Description) {
		changed = append(changed, FieldDescription)
	}
	if deref(a.Payer) != deref(b.Payer) {
		changed = append(changed, FieldPayer)
	}
	if deref(a.Recipient) != deref(b.Recipient) {
		changed = append(changed, FieldRecipient)
	}
	if !sameHours(a.WorkingHours, b.WorkingHours) {
		changed = append(changed, FieldWorkingHours)
	}
	return changed
}

func sameHours(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var fieldMentions = map[string]*regexp.Regexp{
	FieldAmount:       regexp.MustCompile(`(?i)\b(amount|price|cost|total|rate|fee|charge|dollars?|usd|bucks)\b|[$€£]|\d`),
	FieldDescription:  regexp.MustCompile(`(?i)\b(description|describe|work|task|project|job|service|built|did|made)\b`),
	FieldPayer:        regexp.MustCompile(`(?i)\b(payer|payee|client|customer|billed?|pays?|paying|owes?|swap|switch)\b`),
	FieldRecipient:    regexp.MustCompile(`(?i)\b(recipient|worker|contractor|freelancer|developer|my name|i am|i'm|swap|switch)\b`),
	FieldWorkingHours: regexp.MustCompile(`(?i)\b(hours?|hrs?|working|time)\b`),
}

// Mentions reports whether feedback refers to field, either by one of its
// role words or by quoting one of values.
func Mentions(feedback, field string, values ...string) bool {
	if re, ok := fieldMentions[field]; ok && re.MatchString(feedback) {
		return true
	}
	lower := strings.ToLower(feedback)
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// GuardRoles reverts payer or recipient changes that feedback does not ask
// for, so a revision can never silently swap or rename the two parties.
// It returns the guarded draft and the fields it reverted.
func GuardRoles(prev, next Draft, feedback string) (Draft, []string) {
	var reverted []string
	if deref(prev.Payer) != deref(next.Payer) && !Mentions(feedback, FieldPayer, deref(next.Payer)) {
		next.Payer = prev.Payer
		reverted = append(reverted, FieldPayer)
	}
	if deref(prev.Recipient) != deref(next.Recipient) && !Mentions(feedback, FieldRecipient, deref(next.Recipient)) {
		next.Recipient = prev.Recipient
		reverted = append(reverted, FieldRecipient)
	}
	return next, reverted
}

// UnexplainedChanges lists fields that changed between prev and next
// without feedback referring to them.
func UnexplainedChanges(prev, next Draft, feedback string) []string {
	var out []string
	for _, f := range ChangedFields(prev, next) {
		if !Mentions(feedback, f, fieldValue(next, f)) {
			out = append(out, f)
		}
	}
	return out
}

func fieldValue(d Draft, field string) string {
	switch field {
	case FieldAmount:
		if d.Amount.Valid {
			return d.Amount.Decimal.String()
		}
	case FieldDescription:
		return deref(d.Description)
	case FieldPayer:
		return deref(d.Payer)
	case FieldRecipient:
		return deref(d.Recipient)
	}
	return ""
}
