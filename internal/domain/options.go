package domain

// TranscriptionOption is a selectable model/language preset.
type TranscriptionOption struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Model       string `json:"model"`
	Language    string `json:"language"`
	FillerWords bool   `json:"fillerWords"`
}

// DefaultOptionKey is selected when nothing else is configured.
const DefaultOptionKey = "nova3-en-fw"

var transcriptionOptions = []TranscriptionOption{
	{Key: "nova3-en-fw", Label: "English (Nova-3) + Filler Words", Model: "nova-3", Language: "en", FillerWords: true},
	{Key: "nova3-en", Label: "English (Nova-3)", Model: "nova-3", Language: "en"},
	{Key: "nova3-multi", Label: "Multi (Nova-3) (EN,ES,FR,DE,IT,PT,NL,HI,JA,RU)", Model: "nova-3", Language: "multi"},
	nova2("bg", "Bulgarian"),
	nova2("ca", "Catalan"),
	nova2("zh", "Chinese (Mandarin, Simplified)"),
	nova2("zh-TW", "Chinese (Mandarin, Traditional)"),
	nova2("zh-HK", "Chinese (Cantonese, Traditional)"),
	nova2("cs", "Czech"),
	nova2("da", "Danish"),
	nova2("nl", "Dutch"),
	nova2("en", "English"),
	{Key: "nova2-en-fw", Label: "English (Nova-2) + Filler Words", Model: "nova-2", Language: "en", FillerWords: true},
	nova2("et", "Estonian"),
	nova2("fi", "Finnish"),
	nova2("nl-BE", "Flemish"),
	nova2("fr", "French"),
	nova2("de", "German"),
	nova2("de-CH", "German (Switzerland)"),
	nova2("el", "Greek"),
	nova2("hi", "Hindi"),
	nova2("hu", "Hungarian"),
	nova2("id", "Indonesian"),
	nova2("it", "Italian"),
	nova2("ja", "Japanese"),
	nova2("ko", "Korean"),
	nova2("lv", "Latvian"),
	nova2("lt", "Lithuanian"),
	nova2("ms", "Malay"),
	nova2("no", "Norwegian"),
	nova2("pl", "Polish"),
	nova2("pt", "Portuguese"),
	nova2("ro", "Romanian"),
	nova2("ru", "Russian"),
	nova2("sk", "Slovak"),
	nova2("es", "Spanish"),
	nova2("sv", "Swedish"),
	nova2("th", "Thai"),
	nova2("tr", "Turkish"),
	nova2("uk", "Ukrainian"),
	nova2("vi", "Vietnamese"),
}

func nova2(language, name string) TranscriptionOption {
	return TranscriptionOption{
		Key:      "nova2-" + language,
		Label:    name + " (Nova-2)",
		Model:    "nova-2",
		Language: language,
	}
}

// TranscriptionOptions returns a copy of the option catalogue.
func TranscriptionOptions() []TranscriptionOption {
	out := make([]TranscriptionOption, len(transcriptionOptions))
	copy(out, transcriptionOptions)
	return out
}

// LookupOption finds an option by key.
func LookupOption(key string) (TranscriptionOption, bool) {
	for _, option := range transcriptionOptions {
		if option.Key == key {
			return option, true
		}
	}
	return TranscriptionOption{}, false
}

// SessionConfig builds the connection config for this option.
func (o TranscriptionOption) SessionConfig(diarize bool) SessionConfig {
	return SessionConfig{
		Model:       o.Model,
		Language:    o.Language,
		FillerWords: o.FillerWords,
		Diarize:     diarize,
	}
}
