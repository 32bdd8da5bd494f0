package backbone

import (
	"path"
	"strings"

	"github.com/hyperjump/ectd/internal/models"
	"github.com/hyperjump/ectd/internal/naming"
)

const (
	regionalDoctype = `<!DOCTYPE fda:fda SYSTEM "us-regional-v2-3.dtd">`
	regionalRoot    = "fda:fda"
)

// RegionalSections are the m1-us-regional children in document order.
const (
	SectionForms        = "m1-1-forms"
	SectionCoverLetters = "m1-2-cover-letters"
	SectionAdmin        = "m1-3-administrative-information"
	SectionOther        = "m1-other"
)

// splitRegional buckets module 1 leaves into forms, cover letters and the rest by substring
// of their file name.
func splitRegional(leaves []models.LeafEntry) (forms, covers, other []models.LeafEntry) {
	for _, l := range leaves {
		if ModuleOf(l.Href) != "m1" {
			continue
		}
		probe := strings.ToLower(path.Base(naming.ToSlash(l.Href)))
		switch {
		case strings.Contains(probe, "form"):
			forms = append(forms, l)
		case strings.Contains(probe, "cover"):
			covers = append(covers, l)
		default:
			other = append(other, l)
		}
	}
	return forms, covers, other
}

// GenerateRegionalXML renders us-regional.xml.
func GenerateRegionalXML(leaves []models.LeafEntry, meta Metadata, seq Sequence, opts Options) string {
	w := &xmlWriter{pretty: opts.PrettyPrint}
	w.raw(xmlDeclaration)
	if opts.IncludeDoctype {
		w.raw(regionalDoctype)
	}
	w.open(regionalRoot,
		attr{"xmlns:fda", NamespaceFDA},
		attr{"xmlns:xlink", NamespaceXLink},
		attr{"dtd-version", "2.3"},
	)

	w.open("admin")
	w.open("applicant-info")
	w.text("company-name", meta.Applicant.Name)
	w.optional("dun-and-bradstreet-number", meta.Applicant.DUNS)
	w.close("applicant-info")
	w.open("product-description")
	w.optional("application-number", meta.Product.ApplicationNumber)
	w.optional("application-type", meta.Product.ApplicationType)
	w.optional("prod-name", meta.Product.Name)
	w.close("product-description")
	w.open("submission-information")
	w.text("sequence-number", seq.Number)
	w.text("submission-type", string(seq.Type))
	w.text("submission-date", seq.Date.Format("2006-01-02"))
	w.optional("related-sequence-number", seq.RelatedSequence)
	w.close("submission-information")
	w.close("admin")

	forms, covers, other := splitRegional(leaves)
	w.open("m1-us-regional")
	if len(forms) > 0 || meta.Form356hRef != "" {
		w.open(SectionForms)
		if meta.Form356hRef != "" {
			w.empty("form-356h", attr{"xlink:href", meta.Form356hRef})
		}
		for _, l := range forms {
			writeLeaf(w, l)
		}
		w.close(SectionForms)
	}
	if len(covers) > 0 || meta.CoverLetterRef != "" {
		w.open(SectionCoverLetters)
		if meta.CoverLetterRef != "" {
			w.empty("cover-letter-ref", attr{"xlink:href", meta.CoverLetterRef})
		}
		for _, l := range covers {
			writeLeaf(w, l)
		}
		w.close(SectionCoverLetters)
	}
	w.open(SectionAdmin)
	w.open("contact")
	w.optional("name", meta.Applicant.ContactName)
	w.optional("email", meta.Applicant.ContactEmail)
	w.optional("phone", meta.Applicant.ContactPhone)
	w.close("contact")
	w.optional("duns", meta.Applicant.DUNS)
	w.optional("establishment-id", meta.Product.EstablishmentID)
	w.close(SectionAdmin)
	if len(other) > 0 {
		w.open(SectionOther)
		for _, l := range other {
			writeLeaf(w, l)
		}
		w.close(SectionOther)
	}
	w.close("m1-us-regional")

	w.close(regionalRoot)
	return w.String()
}
