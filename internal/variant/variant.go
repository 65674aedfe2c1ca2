// Package variant defines the closed set of audio codecs carried in Ogg streams.
package variant

// Variant identifies the codec of a logical bitstream.
// It is fixed once a stream has been probed.
type Variant int

const (
	// Unknown is the zero value, used before a stream has been probed.
	Unknown Variant = iota

	// FLAC is FLAC in Ogg (the 0x7F "FLAC" mapping).
	FLAC

	// Vorbis is Ogg Vorbis.
	Vorbis

	// Opus is Ogg Opus (RFC 7845).
	Opus
)

// String returns the codec name.
func (v Variant) String() string {
	switch v {
	case FLAC:
		return "flac"
	case Vorbis:
		return "vorbis"
	case Opus:
		return "opus"
	default:
		return "unknown"
	}
}

// MimeType returns the audio MIME type of the codec, or "" for Unknown.
func (v Variant) MimeType() string {
	switch v {
	case FLAC:
		return "audio/flac"
	case Vorbis:
		return "audio/vorbis"
	case Opus:
		return "audio/opus"
	default:
		return ""
	}
}

// Codecs returns the RFC 6381 codecs string used in HLS playlists.
func (v Variant) Codecs() string {
	switch v {
	case FLAC:
		return "fLaC"
	case Vorbis:
		return "vorbis"
	case Opus:
		return "Opus"
	default:
		return ""
	}
}
