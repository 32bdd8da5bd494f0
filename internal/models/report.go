package models

// BookmarkNode is one outline entry. Level is 1 for roots.
type BookmarkNode struct {
	Title      string          `json:"title"`
	PageNumber *int            `json:"page_number,omitempty"`
	Children   []*BookmarkNode `json:"children,omitempty"`
	SourceFile string          `json:"source_file,omitempty"`
	Level      int             `json:"level"`
	Closed     bool            `json:"closed,omitempty"`
}

// LinkType classifies a hyperlink target.
type LinkType string

const (
	LinkInternal      LinkType = "internal"
	LinkCrossDocument LinkType = "cross-document"
	LinkExternal      LinkType = "external"
	LinkUnknown       LinkType = "unknown"
)

// Rect is an annotation rectangle in default user space.
type Rect struct {
	LLX float64 `json:"llx"`
	LLY float64 `json:"lly"`
	URX float64 `json:"urx"`
	URY float64 `json:"ury"`
}

// ExtractedLink is one link annotation read from a PDF page.
type ExtractedLink struct {
	SourceFile        string   `json:"source_file"`
	PageNumber        int      `json:"page_number"`
	TargetURI         string   `json:"target_uri,omitempty"`
	TargetDestination string   `json:"target_destination,omitempty"`
	TargetPage        *int     `json:"target_page,omitempty"`
	LinkType          LinkType `json:"link_type"`
	Rect              *Rect    `json:"rect,omitempty"`
}

// LinkValidationResult is the outcome of resolving one link.
type LinkValidationResult struct {
	IsValid      bool   `json:"is_valid"`
	ResolvedPath string `json:"resolved_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Severity of a validation issue. Only errors affect validity.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// ValidationIssue is one finding produced by a check.
type ValidationIssue struct {
	Severity   Severity       `json:"severity"`
	Check      string         `json:"check"`
	Message    string         `json:"message"`
	FilePath   string         `json:"file_path,omitempty"`
	DocumentID string         `json:"document_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}
