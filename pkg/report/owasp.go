package report

// OWASPNone is the classification used when an issue carries no OWASP mapping.
const OWASPNone = "none"

// OWASPDetail describes one OWASP API Security Top 10 (2023) category.
type OWASPDetail struct {
	ID          string `json:"id"          yaml:"id"`
	Name        string `json:"name"        yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

var owaspDetails = map[string]OWASPDetail{
	OWASPNone: {
		ID:          OWASPNone,
		Name:        "Not classified",
		Description: "The issue does not map to an OWASP API Security Top 10 category.",
	},
	"API1:2023": {
		ID:          "API1:2023",
		Name:        "Broken Object Level Authorization",
		Description: "Endpoints expose object identifiers without verifying the caller may access the object.",
	},
	"API2:2023": {
		ID:          "API2:2023",
		Name:        "Broken Authentication",
		Description: "Authentication mechanisms are implemented incorrectly or can be bypassed.",
	},
	"API3:2023": {
		ID:          "API3:2023",
		Name:        "Broken Object Property Level Authorization",
		Description: "Object properties are exposed or writable without property level authorization.",
	},
	"API4:2023": {
		ID:          "API4:2023",
		Name:        "Unrestricted Resource Consumption",
		Description: "Requests are not limited in size, rate or cost.",
	},
	"API5:2023": {
		ID:          "API5:2023",
		Name:        "Broken Function Level Authorization",
		Description: "Administrative or privileged functions are reachable by regular callers.",
	},
	"API6:2023": {
		ID:          "API6:2023",
		Name:        "Unrestricted Access to Sensitive Business Flows",
		Description: "Business flows can be automated or abused without compensating controls.",
	},
	"API7:2023": {
		ID:          "API7:2023",
		Name:        "Server Side Request Forgery",
		Description: "The API fetches caller-supplied URIs without validation.",
	},
	"API8:2023": {
		ID:          "API8:2023",
		Name:        "Security Misconfiguration",
		Description: "The API accepts or returns data that its contract does not allow.",
	},
	"API9:2023": {
		ID:          "API9:2023",
		Name:        "Improper Inventory Management",
		Description: "Undocumented or deprecated endpoints and versions remain exposed.",
	},
	"API10:2023": {
		ID:          "API10:2023",
		Name:        "Unsafe Consumption of APIs",
		Description: "Data received from third-party APIs is trusted without validation.",
	},
}

// LookupOWASP resolves an OWASP mapping id. A nil id resolves to the "none"
// classification; an id missing from the table resolves to nil.
func LookupOWASP(id *string) *OWASPDetail {
	key := OWASPNone
	if id != nil {
		key = *id
	}

	detail, ok := owaspDetails[key]
	if !ok {
		return nil
	}

	return &detail
}
