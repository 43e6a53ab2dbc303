package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"obras/internal/lifecycle"
	"obras/internal/models"
)

// renumber applies order assignments to table inside tx. Every listed row is
// first parked on its negated id so swaps do not trip the unique order index,
// then moved to its new number. table is always a literal from this package.
func renumber(ctx context.Context, tx *sql.Tx, table, what string, assignments []models.OrderAssignment) error {
	if err := lifecycle.ValidateReorder(assignments); err != nil {
		return fmt.Errorf("reorder %s: %w: %w", what, ErrInvalid, err)
	}

	seen := make(map[int64]struct{}, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("reorder %s: id %d listed twice: %w", what, a.ID, ErrInvalid)
		}
		seen[a.ID] = struct{}{}

		res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET order_number = -id WHERE id = ?`, a.ID)
		if err != nil {
			return wrapDBError("reorder "+what, err)
		}
		if err := requireAffected(res, fmt.Sprintf("%s %d", what, a.ID)); err != nil {
			return err
		}
	}

	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET order_number = ? WHERE id = ?`, a.OrderNumber, a.ID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("reorder %s: order number %d already in use: %w", what, a.OrderNumber, ErrConflict)
			}
			return wrapDBError("reorder "+what, err)
		}
	}
	return nil
}
