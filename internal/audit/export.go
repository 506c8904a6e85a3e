package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteCSV serialises entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "created_at", "user_id", "user_email", "action", "details"}); err != nil {
		return err
	}
	for _, e := range entries {
		actor := ""
		if e.ActorID != nil {
			actor = strconv.FormatInt(*e.ActorID, 10)
		}
		if err := writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			actor,
			e.ActorEmail,
			e.Action,
			e.Details,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
