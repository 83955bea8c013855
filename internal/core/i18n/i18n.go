package i18n

import (
	"embed"
	"fmt"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yml
var localesFS embed.FS

// Translations holds all translation strings organized by section
type Translations struct {
	Errors   ErrorTranslations    `yaml:"errors" json:"errors"`
	Server   ServerTranslations   `yaml:"server" json:"server"`
	Download DownloadTranslations `yaml:"download" json:"download"`
	Info     InfoTranslations     `yaml:"info" json:"info"`
}

// ErrorTranslations holds client-facing error messages
type ErrorTranslations struct {
	URLRequired         string `yaml:"url_required" json:"url_required"`
	InvalidType         string `yaml:"invalid_type" json:"invalid_type"`
	VideoURLRequired    string `yaml:"video_url_required" json:"video_url_required"`
	ImagesRequired      string `yaml:"images_required" json:"images_required"`
	UnsupportedURL      string `yaml:"unsupported_url" json:"unsupported_url"`
	IdentifierNotFound  string `yaml:"identifier_not_found" json:"identifier_not_found"`
	UpstreamTimeout     string `yaml:"upstream_timeout" json:"upstream_timeout"`
	ResolutionFailed    string `yaml:"resolution_failed" json:"resolution_failed"`
	NoPlayableMedia     string `yaml:"no_playable_media" json:"no_playable_media"`
	BrowserLaunchFailed string `yaml:"browser_launch_failed" json:"browser_launch_failed"`
	DownloadFailed      string `yaml:"download_failed" json:"download_failed"`
	InvalidAPIKey       string `yaml:"invalid_api_key" json:"invalid_api_key"`
	NotFound            string `yaml:"not_found" json:"not_found"`
	JobNotFound         string `yaml:"job_not_found" json:"job_not_found"`
	QueueFull           string `yaml:"queue_full" json:"queue_full"`
	ShuttingDown        string `yaml:"shutting_down" json:"shutting_down"`
	Internal            string `yaml:"internal" json:"internal"`
}

// ForCode returns the message for a resolution error code, falling back
// to the generic failure message.
func (e ErrorTranslations) ForCode(code string) string {
	switch code {
	case "identifier_not_found":
		return e.IdentifierNotFound
	case "upstream_timeout":
		return e.UpstreamTimeout
	case "no_playable_media":
		return e.NoPlayableMedia
	case "browser_launch_failed":
		return e.BrowserLaunchFailed
	default:
		return e.ResolutionFailed
	}
}

// ServerTranslations holds translations for server messages
type ServerTranslations struct {
	NoConfigWarning string `yaml:"no_config_warning" json:"no_config_warning"`
	RunInitHint     string `yaml:"run_init_hint" json:"run_init_hint"`
	Healthy         string `yaml:"healthy" json:"healthy"`
	CleanupDone     string `yaml:"cleanup_done" json:"cleanup_done"`
	DownloadReady   string `yaml:"download_ready" json:"download_ready"`
	JobQueued       string `yaml:"job_queued" json:"job_queued"`
	JobCancelled    string `yaml:"job_cancelled" json:"job_cancelled"`
	JobRemoved      string `yaml:"job_removed" json:"job_removed"`
}

// DownloadTranslations holds CLI download progress messages
type DownloadTranslations struct {
	Resolving   string `yaml:"resolving"`
	Downloading string `yaml:"downloading"`
	Completed   string `yaml:"completed"`
	Failed      string `yaml:"failed"`
	FileSaved   string `yaml:"file_saved"`
}

// InfoTranslations holds labels for printed media descriptors
type InfoTranslations struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	Type     string `yaml:"type"`
	Cover    string `yaml:"cover"`
	VideoURL string `yaml:"video_url"`
	Images   string `yaml:"images"`
	Degraded string `yaml:"degraded"`
}

var (
	translationsCache = make(map[string]*Translations)
	cacheMutex        sync.RWMutex
	defaultLang       = "en"
)

// SupportedLanguages returns all available language codes
var SupportedLanguages = []struct {
	Code string
	Name string
}{
	{"en", "English"},
	{"vi", "Tiếng Việt"},
	{"zh", "中文"},
}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Vietnamese,
	language.Chinese,
})

// Negotiate picks a supported language code from an Accept-Language header,
// returning fallback when the header is empty or unparsable.
func Negotiate(acceptLanguage, fallback string) string {
	if fallback == "" {
		fallback = defaultLang
	}
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	return SupportedLanguages[idx].Code
}

// GetTranslations returns translations for the specified language
func GetTranslations(lang string) *Translations {
	cacheMutex.RLock()
	if t, ok := translationsCache[lang]; ok {
		cacheMutex.RUnlock()
		return t
	}
	cacheMutex.RUnlock()

	t, err := loadTranslations(lang)
	if err != nil {
		if lang != defaultLang {
			return GetTranslations(defaultLang)
		}
		return &Translations{}
	}

	cacheMutex.Lock()
	translationsCache[lang] = t
	cacheMutex.Unlock()

	return t
}

func loadTranslations(lang string) (*Translations, error) {
	filename := fmt.Sprintf("locales/%s.yml", lang)
	data, err := localesFS.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var t Translations
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// T is a convenience function for getting translations
func T(lang string) *Translations {
	return GetTranslations(lang)
}
