package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/codecs"
)

// CodecInfo is one registry entry with its validation verdict.
type CodecInfo struct {
	codecs.Codec
	Validated bool `json:"validated" doc:"Whether the installed ffmpeg build passed an encode probe for this codec"`
}

// CodecListData is the codec registry payload.
type CodecListData struct {
	Codecs        []CodecInfo `json:"codecs" doc:"Registry in cascade order"`
	ValidatedAt   string      `json:"validatedAt,omitempty" doc:"Timestamp of the last validation run"`
	FFmpegVersion string      `json:"ffmpegVersion,omitempty" doc:"ffmpeg version seen during validation"`
}

func (s *Server) registerCodecRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-codecs",
		Method:      http.MethodGet,
		Path:        "/api/codecs",
		Summary:     "List Codecs",
		Description: "Get the audio codec registry and the results of the last encoder validation run",
		Tags:        []string{"codecs"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*Response[CodecListData], error) {
		validated := s.options.CodecValidation

		all := codecs.All()
		infos := make([]CodecInfo, 0, len(all))
		for _, c := range all {
			infos = append(infos, CodecInfo{
				Codec:     c,
				Validated: validated.IsWorking(c.Encoder),
			})
		}

		data := CodecListData{Codecs: infos}
		if validated != nil {
			data.ValidatedAt = validated.Timestamp
			data.FFmpegVersion = validated.FFmpegVersion
		}
		return respond(data), nil
	})
}
