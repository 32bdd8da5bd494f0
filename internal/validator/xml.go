package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/ectd/internal/backbone"
	"github.com/hyperjump/ectd/internal/checksum"
	"github.com/hyperjump/ectd/internal/models"
)

// XML check names.
const (
	CheckXMLDeclaration    = "xml-declaration"
	CheckXMLRoot           = "xml-root"
	CheckXMLRequired       = "xml-required-element"
	CheckXMLSequence       = "xml-sequence"
	CheckXMLSubmissionType = "xml-submission-type"
	CheckXMLLeafAttributes = "xml-leaf-attributes"
	CheckXMLDuplicateID    = "xml-duplicate-id"
	CheckXMLDuplicateHref  = "xml-duplicate-href"
	CheckXMLHrefSeparator  = "xml-href-separator"
	CheckXMLChecksum       = "xml-checksum"
	CheckXMLChecksumType   = "xml-checksum-type"
	CheckXMLModuleClosed   = "xml-module-closed"
	CheckXMLUnknownModule  = "xml-unknown-module"
	CheckXMLLeafTarget     = "xml-leaf-target"
)

var (
	declPattern      = regexp.MustCompile(`^\s*<\?xml\s+version="1\.[01]"[^?]*\?>`)
	leafPattern      = regexp.MustCompile(`<leaf\b([^>]*)>`)
	attrPattern      = regexp.MustCompile(`([\w:.-]+)\s*=\s*"([^"]*)"`)
	moduleOpenTag    = regexp.MustCompile(`<(m\d[a-z0-9-]*)[\s>/]`)
	requiredLeafAttr = []string{"ID", "xlink:href", "checksum", "checksum-type"}
)

// XMLResult is the outcome of checking one backbone document.
type XMLResult struct {
	File      string                   `json:"file"`
	Valid     bool                     `json:"valid"`
	LeafCount int                      `json:"leaf_count"`
	Issues    []models.ValidationIssue `json:"issues,omitempty"`
}

type xmlRules struct {
	file     string
	root     string
	required []string
	sequence string
	modules  map[string]bool
}

var indexRules = func() xmlRules {
	r := xmlRules{
		file:     backbone.IndexFileName,
		root:     "ectd:ectd",
		required: []string{"submission", "sequence", "submission-type", "submission-date"},
		sequence: "sequence",
		modules:  make(map[string]bool),
	}
	for _, m := range backbone.Modules {
		r.modules[m.Key] = true
	}
	return r
}()

var regionalRules = xmlRules{
	file:     backbone.RegionalFileName,
	root:     "fda:fda",
	required: []string{"admin", "applicant-info", "submission-information", "sequence-number", "submission-type", "m1-us-regional"},
	sequence: "sequence-number",
	modules:  map[string]bool{
		"m1-us-regional":             true,
		backbone.SectionForms:        true,
		backbone.SectionCoverLetters: true,
		backbone.SectionAdmin:        true,
		backbone.SectionOther:        true,
	},
}

// ValidateIndexXML checks the structure of index.xml with pattern matching. When files is not
// nil every leaf href must be the target path of one of them.
func ValidateIndexXML(content string, files []models.PackageFile) XMLResult {
	return validateXML(content, files, indexRules)
}

// ValidateRegionalXML checks the structure of us-regional.xml.
func ValidateRegionalXML(content string, files []models.PackageFile) XMLResult {
	return validateXML(content, files, regionalRules)
}

func validateXML(content string, files []models.PackageFile, rules xmlRules) XMLResult {
	res := XMLResult{File: rules.file}
	add := func(sev models.Severity, check, format string, args ...any) {
		res.Issues = append(res.Issues, models.ValidationIssue{
			Severity: sev,
			Check:    check,
			Message:  fmt.Sprintf(format, args...),
			FilePath: rules.file,
		})
	}

	if !declPattern.MatchString(content) {
		add(models.SeverityError, CheckXMLDeclaration, "XML declaration is missing")
	}
	if !hasElement(content, rules.root) || !strings.Contains(content, "</"+rules.root+">") {
		add(models.SeverityError, CheckXMLRoot, "root element %s is missing or not closed", rules.root)
	}
	for _, el := range rules.required {
		if !hasElement(content, el) {
			add(models.SeverityError, CheckXMLRequired, "required element %s is missing", el)
		}
	}
	if seq, ok := elementText(content, rules.sequence); ok && !isSequence(seq) {
		add(models.SeverityError, CheckXMLSequence, "sequence number %q is not four digits", seq)
	}
	if st, ok := elementText(content, "submission-type"); ok && !backbone.SubmissionType(st).Known() {
		add(models.SeverityWarning, CheckXMLSubmissionType, "submission type %q is not a known type", st)
	}

	checkModules(content, rules, add)

	targets := make(map[string]bool, len(files))
	for _, f := range files {
		targets[f.TargetPath] = true
	}
	ids := make(map[string]bool)
	hrefs := make(map[string]bool)
	for _, m := range leafPattern.FindAllStringSubmatch(content, -1) {
		res.LeafCount++
		attrs := parseAttrs(m[1])
		for _, a := range requiredLeafAttr {
			if _, ok := attrs[a]; !ok {
				add(models.SeverityError, CheckXMLLeafAttributes, "leaf %d is missing attribute %s", res.LeafCount, a)
			}
		}
		if id, ok := attrs["ID"]; ok {
			if ids[id] {
				add(models.SeverityError, CheckXMLDuplicateID, "duplicate leaf ID %s", id)
			}
			ids[id] = true
		}
		if href, ok := attrs["xlink:href"]; ok {
			if hrefs[href] {
				add(models.SeverityWarning, CheckXMLDuplicateHref, "duplicate leaf href %s", href)
			}
			hrefs[href] = true
			if strings.Contains(href, "\\") {
				add(models.SeverityError, CheckXMLHrefSeparator, "leaf href %s contains backslashes", href)
			}
			if files != nil && !targets[href] {
				add(models.SeverityError, CheckXMLLeafTarget, "leaf href %s does not match any package file", href)
			}
		}
		if sum, ok := attrs["checksum"]; ok && !checksum.Valid(sum) {
			add(models.SeverityError, CheckXMLChecksum, "leaf checksum %q is not an MD5 hex digest", sum)
		}
		if typ, ok := attrs["checksum-type"]; ok && typ != checksum.Type {
			add(models.SeverityError, CheckXMLChecksumType, "leaf checksum-type %q is not %s", typ, checksum.Type)
		}
	}

	res.Valid = true
	for _, i := range res.Issues {
		if i.Severity == models.SeverityError {
			res.Valid = false
			break
		}
	}
	return res
}

// checkModules reports module elements that are unknown or not closed as often as opened.
func checkModules(content string, rules xmlRules, add func(models.Severity, string, string, ...any)) {
	opened := make(map[string]int)
	var order []string
	for _, m := range moduleOpenTag.FindAllStringSubmatch(content, -1) {
		if opened[m[1]] == 0 {
			order = append(order, m[1])
		}
		opened[m[1]]++
	}
	for _, name := range order {
		if !rules.modules[name] {
			add(models.SeverityWarning, CheckXMLUnknownModule, "unknown module element %s", name)
		}
		if closed := strings.Count(content, "</"+name+">"); closed != opened[name] {
			add(models.SeverityError, CheckXMLModuleClosed, "module element %s opened %d time(s) but closed %d time(s)", name, opened[name], closed)
		}
	}
}

func hasElement(content, name string) bool {
	open := "<" + name
	for i := strings.Index(content, open); i >= 0; {
		end := i + len(open)
		if end < len(content) && strings.ContainsRune(" \t\r\n>/", rune(content[end])) {
			return true
		}
		next := strings.Index(content[end:], open)
		if next < 0 {
			return false
		}
		i = end + next
	}
	return false
}

func elementText(content, name string) (string, bool) {
	re := regexp.MustCompile(`<` + regexp.QuoteMeta(name) + `>([^<]*)</` + regexp.QuoteMeta(name) + `>`)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func isSequence(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func parseAttrs(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		out[m[1]] = m[2]
	}
	return out
}
