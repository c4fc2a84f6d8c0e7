package crosswalk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Language is an alert language code.
type Language string

const (
	LangEnglish  Language = "en"
	LangHindi    Language = "hi"
	LangKannada  Language = "kn"
	LangTamil    Language = "ta"
	LangTelugu   Language = "te"
	LangKonkani  Language = "kok"
	LangTulu     Language = "tcy"
	DefaultLang           = LangEnglish
	countPattern          = "{count}"
)

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code Language `json:"code"`
	Name string   `json:"name"`
	// Speech is the code passed to the speech engine. Tulu has no voice of
	// its own and is read by a Kannada voice; romanised Konkani by English.
	Speech string `json:"speech"`
}

var languageInfo = map[Language]LanguageInfo{
	LangEnglish: {LangEnglish, "English", "en"},
	LangHindi:   {LangHindi, "Hindi", "hi"},
	LangKannada: {LangKannada, "Kannada", "kn"},
	LangTamil:   {LangTamil, "Tamil", "ta"},
	LangTelugu:  {LangTelugu, "Telugu", "te"},
	LangKonkani: {LangKonkani, "Konkani", "en"},
	LangTulu:    {LangTulu, "Tulu", "kn"},
}

var catalog = map[Language]map[Status]string{
	LangEnglish: {
		StatusMoving:       "Warning! Vehicles are moving. Do not cross.",
		StatusStopped:      "Caution. {count} vehicles detected but stopped. Proceed with care.",
		StatusClear:        "The path is clear. Safe to cross now.",
		StatusNoCrosswalk:  "No crosswalk detected. Do not cross now.",
		StatusUndetermined: "Do not cross now.",
	},
	LangHindi: {
		StatusMoving:       "चेतावनी! वाहन चल रहे हैं। पार न करें।",
		StatusStopped:      "सावधान। {count} वाहनों का पता चला है लेकिन वे रुके हुए हैं। सावधानी से आगे बढ़ें।",
		StatusClear:        "रास्ता साफ है। अब सुरक्षित रूप से पार कर सकते हैं।",
		StatusNoCrosswalk:  "अब सड़क पार न करें",
		StatusUndetermined: "अब सड़क पार न करें",
	},
	LangKannada: {
		StatusMoving:       "ಎಚ್ಚರಿಕೆ! ವಾಹನಗಳು ಚಲಿಸುತ್ತಿವೆ. ದಾಟಬೇಡಿ.",
		StatusStopped:      "ಜಾಗರೂಕರಾಗಿರಿ. {count} ವಾಹನಗಳು ಕಂಡುಬಂದಿವೆ ಆದರೆ ನಿಲ್ಲಿಸಲಾಗಿದೆ. ಜಾಗರೂಕತೆಯಿಂದ ಮುಂದುವರಿಯಿರಿ.",
		StatusClear:        "ಮಾರ್ಗ ಸ್ಪಷ್ಟವಾಗಿದೆ. ಈಗ ಸುರಕ್ಷಿತವಾಗಿ ದಾಟಬಹುದು.",
		StatusNoCrosswalk:  "ಈಗ ದಾಟಬೇಡಿ",
		StatusUndetermined: "ಈಗ ದಾಟಬೇಡಿ",
	},
	LangTamil: {
		StatusMoving:       "எச்சரிக்கை! வாகனங்கள் நகரும். கடக்க வேண்டாம்.",
		StatusStopped:      "எச்சரிக்கை. {count} வாகனங்கள் கண்டறியப்பட்டன ஆனால் நிறுத்தப்பட்டன. கவனத்துடன் தொடரவும்.",
		StatusClear:        "பாதை தெளிவாக உள்ளது. இப்போது பாதுகாப்பாக கடக்கலாம்.",
		StatusNoCrosswalk:  "இப்போது தாண்ட வேண்டாம்",
		StatusUndetermined: "இப்போது தாண்ட வேண்டாம்",
	},
	LangTelugu: {
		StatusMoving:       "హెచ్చరిక! వాహనాలు కదులుతున్నాయి. దాటవద్దు.",
		StatusStopped:      "జాగ్రత్త. {count} వాహనాలు కనుగొనబడ్డాయి కానీ ఆపబడ్డాయి. జాగ్రత్తగా ముందుకు సాగండి.",
		StatusClear:        "మార్గం స్పష్టంగా ఉంది. ఇప్పుడు సురక్షితంగా దాటవచ్చు.",
		StatusNoCrosswalk:  "ఇప్పుడు దాటవద్దు",
		StatusUndetermined: "ఇప్పుడు దాటవద్దు",
	},
	LangKonkani: {
		StatusMoving:       "Xetavanni! Vaahan chalta. Poddunk naka.",
		StatusStopped:      "Savdhani. {count} vaahan mell'l'le ani thamble asat. Savdhanean voch.",
		StatusClear:        "Marg mullav. Ata surakshit poddunk zai.",
		StatusNoCrosswalk:  "Ata poddunk naka.",
		StatusUndetermined: "Ata poddunk naka.",
	},
	LangTulu: {
		StatusMoving:       "Tulu: Warning! Vehicles moving. Barpandhe.",
		StatusStopped:      "Tulu: {count} vehicles stopped. Savdhana.",
		StatusClear:        "Tulu: Safe to cross. Barpuji.",
		StatusNoCrosswalk:  "Tulu: Do not cross now.",
		StatusUndetermined: "Tulu: Do not cross now.",
	},
}

// ParseLanguage validates a language code.
func ParseLanguage(code string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := catalog[lang]; !ok {
		return "", fmt.Errorf("unsupported language %q", code)
	}
	return lang, nil
}

// Languages lists the supported languages ordered by code.
func Languages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(languageInfo))
	for _, info := range languageInfo {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SpeechLanguage returns the speech engine code for lang.
func SpeechLanguage(lang Language) string {
	if info, ok := languageInfo[lang]; ok {
		return info.Speech
	}
	return string(DefaultLang)
}

// Message renders the alert text for a verdict. Unknown languages fall back
// to English.
func Message(lang Language, v Verdict) string {
	templates, ok := catalog[lang]
	if !ok {
		templates = catalog[DefaultLang]
	}
	text, ok := templates[v.Status]
	if !ok {
		text = templates[StatusUndetermined]
	}
	return strings.ReplaceAll(text, countPattern, strconv.Itoa(v.VehicleCount))
}
