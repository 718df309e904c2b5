package postgres

import (
	"fmt"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// withListOpts appends the time window, ordering and pagination of opts to a
// query whose existing placeholders are already bound in args.
func withListOpts(query string, args []any, timeCol, order string, opts domain.ListOpts) (string, []any) {
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= %s", timeCol, next(*opts.Since))
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= %s", timeCol, next(*opts.Until))
	}
	query += fmt.Sprintf(" ORDER BY %s %s", timeCol, order)
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
