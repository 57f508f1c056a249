package migrate

import (
	"context"
	"fmt"

	atlas "ariga.io/atlas/sql/migrate"

	"github.com/syssam/strata/dialect"
)

// Create executes the CREATE TABLE statement of every table directly
// against the driver. Intended for tests and development bootstrap; real
// deployments emit versioned files with WritePlan and run them through the
// Migrator.
func Create(ctx context.Context, driver dialect.Driver, tables ...*Table) error {
	for _, t := range tables {
		if err := driver.Exec(ctx, t.CreateSQL(driver.Dialect()), []any{}, nil); err != nil {
			return fmt.Errorf("migrate: creating table %q: %w", t.Name, err)
		}
	}
	return nil
}

// Plan builds a named migration plan creating the given tables, with the
// reverse drops in dependency-safe order.
func Plan(name, dialectName string, tables ...*Table) *atlas.Plan {
	plan := &atlas.Plan{Name: name}
	for _, t := range tables {
		plan.Changes = append(plan.Changes, &atlas.Change{
			Cmd:     t.CreateSQL(dialectName) + ";",
			Reverse: t.DropSQL(dialectName) + ";",
			Comment: fmt.Sprintf("create %q table", t.Name),
		})
	}
	return plan
}

// WritePlan formats the plan and writes the resulting migration files into
// the directory, updating the directory checksum so external tooling can
// verify integrity.
func WritePlan(dir atlas.Dir, f atlas.Formatter, plan *atlas.Plan) error {
	files, err := f.Format(plan)
	if err != nil {
		return fmt.Errorf("migrate: formatting plan %q: %w", plan.Name, err)
	}
	for _, file := range files {
		if err := dir.WriteFile(file.Name(), file.Bytes()); err != nil {
			return fmt.Errorf("migrate: writing %q: %w", file.Name(), err)
		}
	}
	sum, err := dir.Checksum()
	if err != nil {
		return fmt.Errorf("migrate: computing checksum: %w", err)
	}
	return atlas.WriteSumFile(dir, sum)
}
