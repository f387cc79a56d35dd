// Command songfactory manages a catalog of song requests and turns queued
// entries into downloaded audio through the MusicGPT API or browser
// automation of the music site.
//
//	songfactory catalog add --title "Night Drive" --prompt "dark synthwave"
//	songfactory queue run --dry-run
//	songfactory history import
//	songfactory serve
package main
