package domain

// Drift fields reported by the consistency check.
const (
	FieldAmount     = "amount"
	FieldVATAmount  = "vatAmount"
	FieldVATPercent = "vatPercent"
	FieldRate       = "rate"
)

// Conflict describes why a line no longer matches its source.
type Conflict struct {
	LineID   string
	Type     LineType
	SourceID int64
	Field    string // empty for existence and lock conflicts
	Message  string
}
