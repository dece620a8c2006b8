package gap

// RequiredArtifact is one baseline item a framework expects the organization
// to maintain. DocType is the stable target identifier findings are
// fingerprinted against; it must match the doc_type metadata used at
// ingestion time.
type RequiredArtifact struct {
	Name                string
	DocType             string
	Category            Category
	ControlID           string
	ReviewFrequencyDays int
	EffortClass         string

	// Default impact factors for a finding against this artifact.
	RiskImpact       float64
	ComplianceImpact float64
	BusinessImpact   float64
	FrequencyFactor  float64
}

// catalog is the static per-framework baseline. Content-wise this is a
// pragmatic subset of each framework, not a full control catalog.
var catalog = map[string][]RequiredArtifact{
	"iso27001": {
		{
			Name: "Information Security Policy", DocType: "security-policy",
			Category: CategoryDocumentation, ControlID: "A.5.1",
			ReviewFrequencyDays: 365, EffortClass: "medium",
			RiskImpact: 8, ComplianceImpact: 9, BusinessImpact: 7, FrequencyFactor: 6,
		},
		{
			Name: "Access Control Policy", DocType: "access-control-policy",
			Category: CategoryDocumentation, ControlID: "A.5.15",
			ReviewFrequencyDays: 365, EffortClass: "medium",
			RiskImpact: 9, ComplianceImpact: 8, BusinessImpact: 7, FrequencyFactor: 7,
		},
		{
			Name: "Risk Assessment Report", DocType: "risk-assessment",
			Category: CategoryProcess, ControlID: "6.1.2",
			ReviewFrequencyDays: 180, EffortClass: "high",
			RiskImpact: 9, ComplianceImpact: 9, BusinessImpact: 8, FrequencyFactor: 8,
		},
		{
			Name: "Incident Response Plan", DocType: "incident-response-plan",
			Category: CategoryProcess, ControlID: "A.5.26",
			ReviewFrequencyDays: 180, EffortClass: "medium",
			RiskImpact: 9, ComplianceImpact: 8, BusinessImpact: 9, FrequencyFactor: 7,
		},
		{
			Name: "Asset Inventory", DocType: "asset-inventory",
			Category: CategoryControl, ControlID: "A.5.9",
			ReviewFrequencyDays: 90, EffortClass: "low",
			RiskImpact: 7, ComplianceImpact: 7, BusinessImpact: 6, FrequencyFactor: 9,
		},
	},
	"nist-csf": {
		{
			Name: "Asset Management Baseline", DocType: "asset-inventory",
			Category: CategoryControl, ControlID: "ID.AM",
			ReviewFrequencyDays: 90, EffortClass: "low",
			RiskImpact: 7, ComplianceImpact: 6, BusinessImpact: 6, FrequencyFactor: 9,
		},
		{
			Name: "Detection Processes", DocType: "detection-process",
			Category: CategoryProcess, ControlID: "DE.DP",
			ReviewFrequencyDays: 180, EffortClass: "high",
			RiskImpact: 8, ComplianceImpact: 6, BusinessImpact: 7, FrequencyFactor: 7,
		},
		{
			Name: "Response Plan", DocType: "incident-response-plan",
			Category: CategoryProcess, ControlID: "RS.RP",
			ReviewFrequencyDays: 180, EffortClass: "medium",
			RiskImpact: 9, ComplianceImpact: 7, BusinessImpact: 9, FrequencyFactor: 7,
		},
		{
			Name: "Recovery Plan", DocType: "recovery-plan",
			Category: CategoryProcess, ControlID: "RC.RP",
			ReviewFrequencyDays: 365, EffortClass: "medium",
			RiskImpact: 8, ComplianceImpact: 6, BusinessImpact: 9, FrequencyFactor: 5,
		},
	},
	"soc2": {
		{
			Name: "Change Management Procedure", DocType: "change-management",
			Category: CategoryProcess, ControlID: "CC8.1",
			ReviewFrequencyDays: 365, EffortClass: "medium",
			RiskImpact: 7, ComplianceImpact: 8, BusinessImpact: 6, FrequencyFactor: 6,
		},
		{
			Name: "Logical Access Controls", DocType: "access-control-policy",
			Category: CategoryControl, ControlID: "CC6.1",
			ReviewFrequencyDays: 365, EffortClass: "medium",
			RiskImpact: 9, ComplianceImpact: 8, BusinessImpact: 7, FrequencyFactor: 7,
		},
		{
			Name: "Vendor Management Program", DocType: "vendor-management",
			Category: CategoryDocumentation, ControlID: "CC9.2",
			ReviewFrequencyDays: 365, EffortClass: "high",
			RiskImpact: 6, ComplianceImpact: 7, BusinessImpact: 6, FrequencyFactor: 5,
		},
		{
			Name: "Monitoring and Alerting Coverage", DocType: "monitoring-coverage",
			Category: CategoryTechnology, ControlID: "CC7.2",
			ReviewFrequencyDays: 90, EffortClass: "high",
			RiskImpact: 8, ComplianceImpact: 7, BusinessImpact: 8, FrequencyFactor: 8,
		},
	},
}

// Frameworks lists the framework ids the catalog covers.
func Frameworks() []string {
	return []string{"iso27001", "nist-csf", "soc2"}
}

// Required returns the baseline for a framework; nil for unknown ids.
func Required(framework string) []RequiredArtifact {
	return catalog[framework]
}
