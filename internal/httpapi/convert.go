package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// The controller has no generated schema; protobuf clients receive a
// google.protobuf.Struct with the same keys as the JSON body.

func statusToProto(st types.Status) (*structpb.Struct, error) {
	rows := make([]any, len(st.Frame))
	for i, l := range st.Frame {
		rows[i] = l.Text
	}
	return structpb.NewStruct(map[string]any{
		"mode":             st.Mode,
		"powered":          st.Powered,
		"holder_card_id":   st.HolderCardID,
		"holder_name":      st.HolderName,
		"session_id":       st.SessionID,
		"missing_ticks":    st.MissingTicks,
		"grace_ticks":      st.GraceTicks,
		"enrollment_state": st.EnrollmentState,
		"ticks_remaining":  st.TicksRemaining,
		"frame":            rows,
		"color": map[string]any{
			"r": int(st.Color.R), "g": int(st.Color.G), "b": int(st.Color.B),
		},
		"ticks":           float64(st.Ticks),
		"hardware_faults": st.HardwareFaults,
		"updated_at":      st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func userToProto(v userView) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"card_id":      v.CardID,
		"secondary_id": v.SecondaryID,
		"full_name":    v.FullName,
		"is_admin":     v.IsAdmin,
		"expiration":   v.Expiration.UTC().Format(time.RFC3339),
		"decision":     v.Decision,
	})
}
