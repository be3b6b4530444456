package realtime

import (
	"errors"

	"voice-bridge/pkg/utils"
)

var ErrBadAudio = errors.New("realtime: audio payload is not base64")

const (
	appendPrefix = `{"type":"input_audio_buffer.append","audio":"`
	appendSuffix = `"}`
)

// AppendAudio builds an input_audio_buffer.append frame around an
// already-encoded payload without decoding it.
func AppendAudio(payload string) ([]byte, error) {
	if !utils.IsStdBase64(payload) {
		return nil, ErrBadAudio
	}
	b := make([]byte, 0, len(appendPrefix)+len(payload)+len(appendSuffix))
	b = append(b, appendPrefix...)
	b = append(b, payload...)
	b = append(b, appendSuffix...)
	return b, nil
}
