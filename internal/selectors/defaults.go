package selectors

// Group names used by the automation driver.
const (
	GroupPromptTextarea = "prompt_textarea"
	GroupLyricsToggle   = "lyrics_toggle"
	GroupLyricsTextarea = "lyrics_textarea"
	GroupGenerateButton = "generate_button"
	GroupHomeLink       = "home_link"
	GroupSongCard       = "song_card"
	GroupCardMenuButton = "card_menu_button"
	GroupMenuDownload   = "menu_download"
	GroupMenuFullSong   = "menu_full_song"
	GroupLoadMore       = "load_more_button"
)

// Defaults returns the initial candidates for every known group. Entries
// starting with "//" or ".//" are XPath expressions; the rest are CSS
// selectors.
func Defaults() map[string][]string {
	return map[string][]string{
		GroupPromptTextarea: {
			`textarea[title*="Describe"]`,
			`textarea[maxlength="500"]`,
			`textarea[placeholder*="escribe"]`,
			`textarea[placeholder*="song"]`,
		},
		GroupLyricsToggle: {
			`[data-name="LyricsButton"] button`,
			`button[aria-label="Lyrics"]`,
		},
		GroupLyricsTextarea: {
			`textarea[placeholder*="Write your own lyrics"]`,
			`textarea[placeholder*="lyrics"]`,
			`textarea[maxlength="3000"]`,
		},
		GroupGenerateButton: {
			`button[type='submit']`,
			`//button[contains(normalize-space(.), 'Generate')]`,
			`//button[contains(normalize-space(.), 'Create')]`,
			`button[aria-label*='generate']`,
		},
		GroupHomeLink: {
			`[data-name="Home"]`,
			`a[href="/"]`,
			`//a[contains(normalize-space(.), 'Home')]`,
		},
		GroupSongCard: {
			`[data-name="ProjectItem"]`,
		},
		// Resolved inside the matched song card.
		GroupCardMenuButton: {
			`button[aria-haspopup="menu"]`,
			`[data-name="MoreButton"] button`,
			`button[aria-label*="more" i]`,
			`.//button[last()]`,
		},
		GroupMenuDownload: {
			`//*[normalize-space(text())='Download']`,
		},
		GroupMenuFullSong: {
			`//*[normalize-space(text())='Full Song']`,
		},
		GroupLoadMore: {
			`//button[contains(normalize-space(.), 'Load More')]`,
			`//button[contains(normalize-space(.), 'Load more')]`,
		},
	}
}
