package types

// SearchHit is a single result of the remote search index.
type SearchHit struct {
	ObjectID          string            `json:"objectID"`
	OrderNumber       string            `json:"orderNumber"`
	CustomerName      string            `json:"customerName"`
	Email             string            `json:"email"`
	Total             float64           `json:"total"`
	Currency          string            `json:"currency,omitempty"`
	CreatedAt         string            `json:"createdAt,omitempty"`
	FinancialStatus   string            `json:"financialStatus,omitempty"`
	FulfillmentStatus string            `json:"fulfillmentStatus,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Vendor            string            `json:"vendor,omitempty"`
	Highlights        map[string]string `json:"highlights,omitempty"`
}

// Operator is a comparison operator of a parsed query condition.
type Operator string

// Operator constants
const (
	OpContains  Operator = "contains"
	OpEquals    Operator = "="
	OpNotEquals Operator = "!="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
)

// Connector joins a condition to the result of the conditions before it.
type Connector string

// Connector constants
const (
	ConnectorNone Connector = ""
	ConnectorAnd  Connector = "AND"
	ConnectorOr   Connector = "OR"
)

// ParsedCondition is one condition of a parsed boolean query.
type ParsedCondition struct {
	Column    string    `json:"column"`
	Operator  Operator  `json:"operator"`
	Value     string    `json:"value"`
	Connector Connector `json:"connector,omitempty"`
}
