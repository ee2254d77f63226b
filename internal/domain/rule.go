package domain

// MerchantExpression is a CEL predicate over account statistics that marks
// matching accounts as merchants.
//
// Available variables: account_id (string), in_count, out_count, degree,
// counterparties (int), in_amount, out_amount, tx_per_hour (double).
//
// Example: in_count > 10 && out_count == 0
type MerchantExpression struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
}

// MerchantRuleKind tags a merchant classification rule variant.
type MerchantRuleKind string

const (
	MerchantRuleName       MerchantRuleKind = "name_pattern"
	MerchantRulePrefix     MerchantRuleKind = "prefix"
	MerchantRuleVolume     MerchantRuleKind = "volume_threshold"
	MerchantRuleExpression MerchantRuleKind = "expression"
)
