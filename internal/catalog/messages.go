package catalog

// Namespace names a message group.
type Namespace string

const (
	NSHeader              Namespace = "HEADER"
	NSDecisionMatrix      Namespace = "DB.MATRIX"
	NSSelfEfficacyGeneric Namespace = "SE.GEN"
	NSSelfEfficacyBanded  Namespace = "SE.BANDED"
	NSProcExperiential    Namespace = "PROC.EXP"
	NSProcJoint           Namespace = "PROC.EXP_BEH"
	NSProcBehavioral      Namespace = "PROC.BEH"
	NSStressPrescription  Namespace = "RISCI.STRESS.PRESC"
	NSCopingPrescription  Namespace = "RISCI.COPING.PRESC"
	NSSMAPlanning         Namespace = "SMA.PLANNING"
	NSSMAReframing        Namespace = "SMA.REFRAMING"
	NSSMAHealthy          Namespace = "SMA.HEALTHY"
	NSFooter              Namespace = "FOOTER"
)

// Fixed message ids the selector looks up directly.
const (
	IDHeaderStage     = "HEADER.STAGE"
	IDSelfEfficacyPCC = "SE.GEN.PC_C"
	IDFooterNextStep  = "FOOTER.NEXT_STEP"
)

// Template is the title/body pair of a message, with {{var}} placeholders.
type Template struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body"  json:"body"`
}

// Message is one authored feedback record. Stages and Bands are optional
// applicability constraints; an empty value means "any".
type Message struct {
	ID               string            `yaml:"id"                json:"id"`
	Stages           []Stage           `yaml:"stages"            json:"stages,omitempty"`
	Bands            map[string]string `yaml:"bands"             json:"bands,omitempty"`
	Template         Template          `yaml:"template"          json:"template"`
	SuggestedActions []string          `yaml:"suggested_actions" json:"suggested_actions,omitempty"`
}

// AppliesTo reports whether the message may be shown at stage s.
func (m Message) AppliesTo(s Stage) bool {
	if len(m.Stages) == 0 {
		return true
	}
	for _, st := range m.Stages {
		if st == s {
			return true
		}
	}
	return false
}
