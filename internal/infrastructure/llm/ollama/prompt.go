package ollama

import "fmt"

func buildAnalysisPrompt(pages int) string {
	pageNote := "The attached image is one medical document."
	if pages > 1 {
		pageNote = fmt.Sprintf("The %d attached images are pages of ONE medical document, in order.", pages)
	}

	return pageNote + `
The document is most likely in Russian. Extract its content and return a strict JSON object with keys:
category (string: analysis, examination, consultation, hospital or other),
subtype (string: blood, urine, biochemistry, oncomarker, hormones, ultrasound, mri, ct, xray, endoscopy, oncologist, urologist, therapist, discharge, surgery or other),
title (string, short human-readable document name in the document language),
date (string, document date as YYYY-MM-DD if visible),
doctor (string, examining doctor's name if visible),
specialty (string),
clinic (string),
summary (string, 1-2 sentences),
conclusion (string, the document's conclusion section verbatim if present),
recommendations (array of strings),
fields (object mapping test or parameter names to their raw values with units, e.g. {"Гемоглобин": "132 г/л"}),
tags (array of strings),
confidence (number from 0 to 1).
No markdown, no extra keys. Use empty values for anything not visible.`
}
