package provenance

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/model"
)

// ValidateItem checks that the item's purchase date and recorded events can
// be placed on a timeline. An empty purchase date is allowed.
func ValidateItem(item model.Item) error {
	if strings.TrimSpace(item.PurchaseDate) != "" {
		if _, ok := ParseDate(item.PurchaseDate); !ok {
			return eris.Errorf("purchase date %q is not YYYY-MM-DD or RFC 3339", item.PurchaseDate)
		}
	}
	return ValidateEvents(item.Events)
}

// ValidateEvents rejects events with an unknown type or an unparseable date.
func ValidateEvents(events []model.ProvenanceEvent) error {
	for i, ev := range events {
		label := ev.ID
		if label == "" {
			label = "#" + strconv.Itoa(i+1)
		}
		if !ev.Type.Valid() {
			return eris.Errorf("event %s: unknown type %q", label, ev.Type)
		}
		if _, ok := ParseDate(ev.Date); !ok {
			return eris.Errorf("event %s: date %q is not YYYY-MM-DD or RFC 3339", label, ev.Date)
		}
	}
	return nil
}
