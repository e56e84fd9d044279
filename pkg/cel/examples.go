package cel

// ConditionExamples are reaction rule conditions accepted by the evaluator.
var ConditionExamples = map[string]string{
	"any_action":          `size(actions) > 0`,
	"specific_action":     `"EnqueueForReview" in actions`,
	"single_signal":       `size(signals) == 1`,
	"bank_source":         `signals.exists(s, s.bank_source == "te")`,
	"classification":      `signals.exists(s, "true_positive" in s.classifications)`,
	"content_prefix":      `content_key.startsWith("images/")`,
	"all_from_one_bank":   `signals.all(s, s.bank_id == "303636684709969")`,
	"no_review_on_delete": `!("Delete" in actions) && size(actions) > 0`,
}
