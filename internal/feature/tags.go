// ABOUTME: Reads embedded ID3/Vorbis/MP4 tags directly from the audio file
// ABOUTME: Same dhowden/tag call the teacher's GetTrackMetadata made, now feeding Track's tag fields only

package feature

import (
	"os"

	"github.com/dhowden/tag"

	"crateforge/internal/apperror"
)

// EmbeddedTags holds the subset of a file's embedded metadata the library
// cares about. Missing tags are represented as absent (nil), never as
// empty strings, per the data model's invariant.
type EmbeddedTags struct {
	Title  *string
	Artist *string
	Album  *string
	Year   *int
	Format string
}

// ReadEmbeddedTags opens path and extracts its embedded tags. This is
// independent of the Extractor boundary: BPM/energy/key/mood come from the
// external extractor, while title/artist/album/year come straight from the
// container's own tag frames.
func ReadEmbeddedTags(path string) (EmbeddedTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return EmbeddedTags{}, apperror.Wrap(apperror.IOError, err, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return EmbeddedTags{}, UnsupportedFormat(path)
	}

	out := EmbeddedTags{Format: string(meta.FileType())}

	if v := meta.Title(); v != "" {
		out.Title = &v
	}

	if v := meta.Artist(); v != "" {
		out.Artist = &v
	}

	if v := meta.Album(); v != "" {
		out.Album = &v
	}

	if v := meta.Year(); v != 0 {
		out.Year = &v
	}

	return out, nil
}
