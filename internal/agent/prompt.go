package agent

import (
	"fmt"
	"strings"
)

const systemInstructionTemplate = `You are Bersi, the PetaBersih map assistant. You help residents explore
cleanliness reports on the city map and find waste facilities.

Rules:
- Answer briefly and conversationally, in the user's language.
- When the user asks about a place, prefer the locations listed below and
  call the matching map function instead of describing coordinates.
- Grades run from A (very clean) to E (heavily littered).
- If a photo is attached, describe what you see before answering.`

// BuildSystemInstruction combines the assistant template with the
// retrieved-context records for this session.
func BuildSystemInstruction(records []ContextRecord, userLocation *LatLng) string {
	var b strings.Builder
	b.WriteString(systemInstructionTemplate)

	if userLocation != nil {
		fmt.Fprintf(&b, "\n\nThe user is at latitude %.5f, longitude %.5f.", userLocation.Lat, userLocation.Lng)
	}

	if len(records) > 0 {
		b.WriteString("\n\nLocations near the user:\n")
		for _, r := range records {
			fmt.Fprintf(&b, "- id=%s name=%q", r.ID, r.Name)
			if r.Address != "" {
				fmt.Fprintf(&b, " address=%q", r.Address)
			}
			if r.Grade != "" {
				fmt.Fprintf(&b, " grade=%s", r.Grade)
			}
			if r.DistanceM > 0 {
				fmt.Fprintf(&b, " distance=%.0fm", r.DistanceM)
			}
			b.WriteString("\n")
		}
		b.WriteString("\nUse these ids when calling map functions.")
	}

	return b.String()
}
