package recall

// Bot is the subset of a Recall bot the service reads.
type Bot struct {
	ID         string      `json:"id"`
	MeetingURL any         `json:"meeting_url,omitempty"`
	BotName    string      `json:"bot_name"`
	JoinAt     string      `json:"join_at"`
	Recordings []Recording `json:"recordings"`
}

// Recording is one recording produced by a bot.
type Recording struct {
	ID             string         `json:"id"`
	MediaShortcuts MediaShortcuts `json:"media_shortcuts"`
}

// MediaShortcuts links to the artifacts of a recording.
type MediaShortcuts struct {
	Transcript *MediaShortcut `json:"transcript"`
}

// MediaShortcut is a single artifact link.
type MediaShortcut struct {
	ID   string `json:"id"`
	Data struct {
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

// TranscriptURL returns the download URL of the first recording's
// transcript, or "" when none is available yet.
func (b *Bot) TranscriptURL() string {
	if b == nil || len(b.Recordings) == 0 {
		return ""
	}
	t := b.Recordings[0].MediaShortcuts.Transcript
	if t == nil {
		return ""
	}
	return t.Data.DownloadURL
}

// ZoomCredential is a Zoom OAuth credential registered with Recall.
type ZoomCredential struct {
	ID                     string `json:"id"`
	OAuthApp               string `json:"oauth_app"`
	UserID                 string `json:"user_id"`
	Status                 string `json:"status"`
	AccessTokenCallbackURL string `json:"access_token_callback_url"`
}

// CredentialHealthy is the status of a usable credential.
const CredentialHealthy = "healthy"

type createBotRequest struct {
	MeetingURL      string          `json:"meeting_url"`
	BotName         string          `json:"bot_name"`
	RecordingConfig recordingConfig `json:"recording_config"`
}

type recordingConfig struct {
	Transcript transcriptConfig `json:"transcript"`
}

type transcriptConfig struct {
	Provider map[string]struct{} `json:"provider"`
}

type credentialList struct {
	Results []ZoomCredential `json:"results"`
}
