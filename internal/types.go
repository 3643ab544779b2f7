package internal

// MatchMethod records which tier produced a header mapping.
type MatchMethod string

const (
	MethodExact    MatchMethod = "exact"
	MethodFuzzy    MatchMethod = "fuzzy"
	MethodSemantic MatchMethod = "semantic"
	MethodNone     MatchMethod = "none"
)

// Confidence grades how trustworthy a header mapping is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// HeaderMapping is the audit record for one column header. Created once by
// the matcher and never modified afterwards.
type HeaderMapping struct {
	OriginalHeader   string      `json:"original_header"`
	MatchedParameter *string     `json:"matched_parameter"`
	MatchedAsset     *string     `json:"matched_asset"`
	Method           MatchMethod `json:"method"`
	Confidence       Confidence  `json:"confidence"`
	NormalizedHeader *string     `json:"normalized_header"`
}

// MergedRegion is a merged-cell rectangle, 1-indexed, bounds inclusive.
type MergedRegion struct {
	MinRow int `json:"min_row"`
	MaxRow int `json:"max_row"`
	MinCol int `json:"min_col"`
	MaxCol int `json:"max_col"`
}

// TableStructure describes where the table lives inside a sheet.
// DataStartRow is always HeaderRowIndex+1.
type TableStructure struct {
	HeaderRowIndex int            `json:"header_row_index"`
	DataStartRow   int            `json:"data_start_row"`
	ColumnCount    int            `json:"column_count"`
	MergedCells    []MergedRegion `json:"merged_cells"`
}

// ParsedCell carries one data cell with its full audit trail.
// OriginalValue is nil, float64, string or bool; ParsedValue is nil,
// float64 or string.
type ParsedCell struct {
	RowIndex      int           `json:"row_index"`
	ColumnIndex   int           `json:"column_index"`
	OriginalValue any           `json:"original_value"`
	ParsedValue   any           `json:"parsed_value"`
	HeaderMapping HeaderMapping `json:"header_mapping"`
	ParseSuccess  bool          `json:"parse_success"`
	ParseError    *string       `json:"parse_error"`
}

// ParseResult is the full outcome for one file: structure, one mapping per
// column in header order, the parsed grid and aggregate counters.
type ParseResult struct {
	FileName         string          `json:"file_name"`
	TableStructure   TableStructure  `json:"table_structure"`
	HeaderMappings   []HeaderMapping `json:"header_mappings"`
	ParsedData       [][]ParsedCell  `json:"parsed_data"`
	TotalCells       int             `json:"total_cells"`
	SuccessfulParses int             `json:"successful_parses"`
	SemanticCalls    int             `json:"semantic_calls"`
}

// ReportRow is a persisted inbound report email.
type ReportRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

// FetchedMailMessage is a raw report email pulled from a mail provider.
type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// ParseRunRow summarizes one stored parse run.
type ParseRunRow struct {
	ID               int
	TraceID          string
	ReportID         *int
	FileName         string
	HeaderRowIndex   int
	DataStartRow     int
	ColumnCount      int
	TotalCells       int
	SuccessfulParses int
	SemanticCalls    int
	ResultJSON       string
	CreatedAt        string
}
