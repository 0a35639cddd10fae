package enrich

// pitchClasses maps the audio-feature key field (pitch class notation) to
// note names.
var pitchClasses = [...]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// KeyName returns the note name for a pitch class, or "" when the key is
// outside 0..11 (the API uses -1 for "no key detected").
func KeyName(key int) string {
	if key < 0 || key >= len(pitchClasses) {
		return ""
	}
	return pitchClasses[key]
}

// ModeLabel renders mode as a case-coded modus letter: uppercase M for
// major, lowercase m for minor.
func ModeLabel(mode int) string {
	if mode == 1 {
		return "M"
	}
	return "m"
}

// FullKey combines key and mode into a musician-readable label such as
// "C#m" or "GM". Empty when the key is undetected.
func FullKey(key, mode int) string {
	name := KeyName(key)
	if name == "" {
		return ""
	}
	return name + ModeLabel(mode)
}
