package taxonomy

import "testing"

func TestNormalizeSubtypeOverridesCategory(t *testing.T) {
	for subtype, wantCategory := range canonicalCategory {
		gotCategory, gotSubtype := Normalize("совершенно другая категория", string(subtype))
		if gotSubtype != subtype {
			t.Fatalf("Normalize(_, %q) subtype = %q, want %q", subtype, gotSubtype, subtype)
		}
		if gotCategory != wantCategory {
			t.Fatalf("Normalize(_, %q) category = %q, want %q", subtype, gotCategory, wantCategory)
		}
	}
}

func TestNormalizeKeywordRules(t *testing.T) {
	tests := []struct {
		name         string
		rawCategory  string
		rawSubtype   string
		wantCategory Category
		wantSubtype  Subtype
	}{
		{"psa marker", "", "Анализ ПСА общий", CategoryAnalysis, SubtypeOncomarker},
		{"oncomarker word", "документ", "онкомаркеры", CategoryAnalysis, SubtypeOncomarker},
		{"ultrasound", "обследования", "УЗИ брюшной полости", CategoryExamination, SubtypeUltrasound},
		{"mri", "", "МРТ малого таза", CategoryExamination, SubtypeMRI},
		{"blood", "", "Общий анализ крови", CategoryAnalysis, SubtypeBlood},
		{"urine", "", "Анализ мочи", CategoryAnalysis, SubtypeUrine},
		{"discharge", "", "Выписка из стационара", CategoryHospital, SubtypeDischarge},
		{"consultation", "", "Осмотр терапевта", CategoryConsultation, SubtypeTherapist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, sub := Normalize(tt.rawCategory, tt.rawSubtype)
			if cat != tt.wantCategory || sub != tt.wantSubtype {
				t.Fatalf("Normalize(%q, %q) = (%q, %q), want (%q, %q)",
					tt.rawCategory, tt.rawSubtype, cat, sub, tt.wantCategory, tt.wantSubtype)
			}
		})
	}
}

func TestNormalizeCategoryFallback(t *testing.T) {
	cat, sub := Normalize("Анализы", "что-то невнятное")
	if cat != CategoryAnalysis || sub != SubtypeOther {
		t.Fatalf("expected analysis/other, got %q/%q", cat, sub)
	}
}

func TestNormalizeUnrecognizedReturnsOther(t *testing.T) {
	cat, sub := Normalize("квитанция за парковку", "абвгд")
	if cat != CategoryOther || sub != SubtypeOther {
		t.Fatalf("expected other/other, got %q/%q", cat, sub)
	}
}

func TestValid(t *testing.T) {
	if !Valid(CategoryAnalysis, SubtypeOncomarker) {
		t.Fatalf("analysis/oncomarker should be valid")
	}
	if Valid(CategoryExamination, SubtypeOncomarker) {
		t.Fatalf("examination/oncomarker should be invalid")
	}
	if CategoryOf(Subtype("nonsense")) != CategoryOther {
		t.Fatalf("unknown subtype should map to other")
	}
}
