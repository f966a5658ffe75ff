package datatypes

import (
	"encoding/json"
)

// RetrievedPassage is one passage returned by a document collection for a
// single request. Passages live for the lifetime of one request: they feed
// the generation prompt and are announced to the client as [SOURCE] events,
// but are never persisted by the orchestrator.
//
// The fixed fields cover every collection; collection-specific metadata
// (ticker symbols, filing types, news outlets) rides in Extra so the
// [SOURCE] event schema stays stable while collections evolve.
type RetrievedPassage struct {
	// Collection is the logical collection this passage came from
	// (e.g. "news", "stock", "report").
	Collection string

	// Name is the document title. The generation prompt instructs the
	// model to cite names verbatim, so this value must round-trip through
	// the prompt unchanged.
	Name string

	// URL points at the original document, when the collection has one.
	URL string

	// Category is the collection-assigned document category.
	Category string

	// UpdatedAt is the document date in YYYY-MM-DD form.
	UpdatedAt string

	// Content is the already-chunked passage text.
	Content string

	// Extra holds collection-specific metadata fields.
	Extra map[string]string
}

// SourcePayload renders the passage as the JSON body of a [SOURCE] event.
//
// Extra fields are flattened into the top-level object; the fixed fields
// win on key collision so a collection cannot shadow the stable schema.
func (p *RetrievedPassage) SourcePayload() ([]byte, error) {
	payload := make(map[string]string, len(p.Extra)+5)
	for k, v := range p.Extra {
		payload[k] = v
	}
	payload["name"] = p.Name
	payload["url"] = p.URL
	payload["category"] = p.Category
	payload["updated_at"] = p.UpdatedAt
	payload["page_content"] = p.Content
	return json.Marshal(payload)
}
