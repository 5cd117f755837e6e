package types

// ProjectType is the canonical display name of a project type.
type ProjectType string

const (
	TextClassification         ProjectType = "Text Classification"
	MachineTranslationAdequacy ProjectType = "Machine Translation Adequacy"
	MachineTranslationFluency  ProjectType = "Machine Translation Fluency"
	NamedEntityRecognition     ProjectType = "Named Entity Recognition"
)

// AllProjectTypes lists the supported project types in display order.
var AllProjectTypes = []ProjectType{
	TextClassification,
	MachineTranslationAdequacy,
	MachineTranslationFluency,
	NamedEntityRecognition,
}

var projectTypeAliases = map[string]ProjectType{
	"Text Classification": TextClassification,
	"textclassification":  TextClassification,
	"text-classification": TextClassification,
	"TextClassification":  TextClassification,
	"tc":                  TextClassification,
	"TC":                  TextClassification,

	"Machine Translation Adequacy": MachineTranslationAdequacy,
	"machinetranslationadequacy":   MachineTranslationAdequacy,
	"machine-translation-adequacy": MachineTranslationAdequacy,
	"MachineTranslationAdequacy":   MachineTranslationAdequacy,
	"mta":                          MachineTranslationAdequacy,
	"MTA":                          MachineTranslationAdequacy,

	"Machine Translation Fluency": MachineTranslationFluency,
	"machinetranslationfluency":   MachineTranslationFluency,
	"machine-translation-fluency": MachineTranslationFluency,
	"MachineTranslationFluency":   MachineTranslationFluency,
	"mtf":                         MachineTranslationFluency,
	"MTF":                         MachineTranslationFluency,

	"Named Entity Recognition": NamedEntityRecognition,
	"namedentityrecognition":   NamedEntityRecognition,
	"named-entity-recognition": NamedEntityRecognition,
	"NamedEntityRecognition":   NamedEntityRecognition,
	"ner":                      NamedEntityRecognition,
	"NER":                      NamedEntityRecognition,
}

// ParseProjectType resolves one of the accepted aliases. Matching is exact.
func ParseProjectType(alias string) (ProjectType, bool) {
	pt, ok := projectTypeAliases[alias]
	return pt, ok
}

// HasCategories reports whether projects of this type own categories.
func (t ProjectType) HasCategories() bool {
	return t == TextClassification || t == NamedEntityRecognition
}

// NeedsCharacterLevel reports whether creation requires the
// character-level-selection flag.
func (t ProjectType) NeedsCharacterLevel() bool {
	return t != TextClassification
}
