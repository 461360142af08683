package taxonomy

import "strings"

// Category is the top level of the fixed two-level document taxonomy.
type Category string

const (
	CategoryAnalysis     Category = "analysis"
	CategoryExamination  Category = "examination"
	CategoryConsultation Category = "consultation"
	CategoryHospital     Category = "hospital"
	CategoryOther        Category = "other"
)

// Subtype is the second taxonomy level. Every subtype belongs to exactly one
// canonical category.
type Subtype string

const (
	SubtypeBlood        Subtype = "blood"
	SubtypeUrine        Subtype = "urine"
	SubtypeBiochemistry Subtype = "biochemistry"
	SubtypeOncomarker   Subtype = "oncomarker"
	SubtypeHormones     Subtype = "hormones"

	SubtypeUltrasound Subtype = "ultrasound"
	SubtypeMRI        Subtype = "mri"
	SubtypeCT         Subtype = "ct"
	SubtypeXRay       Subtype = "xray"
	SubtypeEndoscopy  Subtype = "endoscopy"

	SubtypeOncologist Subtype = "oncologist"
	SubtypeUrologist  Subtype = "urologist"
	SubtypeTherapist  Subtype = "therapist"

	SubtypeDischarge Subtype = "discharge"
	SubtypeSurgery   Subtype = "surgery"

	SubtypeOther Subtype = "other"
)

var canonicalCategory = map[Subtype]Category{
	SubtypeBlood:        CategoryAnalysis,
	SubtypeUrine:        CategoryAnalysis,
	SubtypeBiochemistry: CategoryAnalysis,
	SubtypeOncomarker:   CategoryAnalysis,
	SubtypeHormones:     CategoryAnalysis,

	SubtypeUltrasound: CategoryExamination,
	SubtypeMRI:        CategoryExamination,
	SubtypeCT:         CategoryExamination,
	SubtypeXRay:       CategoryExamination,
	SubtypeEndoscopy:  CategoryExamination,

	SubtypeOncologist: CategoryConsultation,
	SubtypeUrologist:  CategoryConsultation,
	SubtypeTherapist:  CategoryConsultation,

	SubtypeDischarge: CategoryHospital,
	SubtypeSurgery:   CategoryHospital,

	SubtypeOther: CategoryOther,
}

type subtypeRule struct {
	keywords []string
	subtype  Subtype
}

// Rules are checked in a fixed priority order; the first keyword hit wins.
// Oncology markers outrank generic blood-test words because the patient's
// follow-up schedule hinges on them.
var subtypeRules = []subtypeRule{
	{[]string{"пса", "psa", "онкомаркер", "рэа", "cea", "са-125", "афп"}, SubtypeOncomarker},
	{[]string{"узи", "ультразвук", "ultrasound", "эхо"}, SubtypeUltrasound},
	{[]string{"мрт", "магнитно-резонанс", "mri"}, SubtypeMRI},
	{[]string{"кт", "компьютерн", "томограф", "ct"}, SubtypeCT},
	{[]string{"рентген", "флюорограф", "x-ray", "xray"}, SubtypeXRay},
	{[]string{"гастроскоп", "колоноскоп", "фгдс", "эндоскоп"}, SubtypeEndoscopy},
	{[]string{"биохим", "biochem"}, SubtypeBiochemistry},
	{[]string{"ттг", "гормон", "тироксин", "hormone"}, SubtypeHormones},
	{[]string{"моча", "мочи", "urine"}, SubtypeUrine},
	{[]string{"кров", "оак", "гемоглобин", "blood"}, SubtypeBlood},
	{[]string{"онколог"}, SubtypeOncologist},
	{[]string{"уролог"}, SubtypeUrologist},
	{[]string{"терапевт", "осмотр"}, SubtypeTherapist},
	{[]string{"выписк", "эпикриз", "стационар"}, SubtypeDischarge},
	{[]string{"операц", "хирург"}, SubtypeSurgery},
}

type categoryRule struct {
	keywords []string
	category Category
}

var categoryRules = []categoryRule{
	{[]string{"анализ", "лаборатор", "analysis", "lab"}, CategoryAnalysis},
	{[]string{"исследован", "обследован", "диагностик", "examination", "imaging"}, CategoryExamination},
	{[]string{"консультац", "приём", "прием", "consultation", "visit"}, CategoryConsultation},
	{[]string{"госпитал", "стационар", "больниц", "hospital"}, CategoryHospital},
}

// CategoryOf returns the canonical category of a subtype, or CategoryOther
// for anything unknown.
func CategoryOf(subtype Subtype) Category {
	if cat, ok := canonicalCategory[subtype]; ok {
		return cat
	}
	return CategoryOther
}

// Valid reports whether category/subtype form a pair from the taxonomy.
func Valid(category Category, subtype Subtype) bool {
	cat, ok := canonicalCategory[subtype]
	return ok && cat == category
}

// Normalize maps free-text category and subtype strings onto the fixed
// enumeration. A recognized subtype wins over any conflicting category; when
// nothing matches at all the result is other/other, never an error.
func Normalize(rawCategory, rawSubtype string) (Category, Subtype) {
	subRaw := strings.ToLower(strings.TrimSpace(rawSubtype))
	catRaw := strings.ToLower(strings.TrimSpace(rawCategory))

	if sub := Subtype(subRaw); sub != "" {
		if cat, ok := canonicalCategory[sub]; ok {
			return cat, sub
		}
	}
	for _, rule := range subtypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(subRaw, kw) {
				return canonicalCategory[rule.subtype], rule.subtype
			}
		}
	}

	if cat := Category(catRaw); cat != "" {
		switch cat {
		case CategoryAnalysis, CategoryExamination, CategoryConsultation, CategoryHospital, CategoryOther:
			return cat, SubtypeOther
		}
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(catRaw, kw) {
				return rule.category, SubtypeOther
			}
		}
	}

	return CategoryOther, SubtypeOther
}
