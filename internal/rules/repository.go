package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for rule persistence operations.
// This abstraction allows for different implementations (SQLite, mock,
// etc.) and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a rule by its unique identifier.
	// Returns ErrRuleNotFound if the rule does not exist.
	GetByID(ctx context.Context, id string) (*Rule, error)

	// List retrieves all rules, highest priority first.
	List(ctx context.Context) ([]Rule, error)

	// ListEnabled retrieves enabled rules, highest priority first.
	ListEnabled(ctx context.Context) ([]Rule, error)

	// Create inserts a new rule.
	// Returns ErrRuleExists if a rule with the same ID already exists.
	Create(ctx context.Context, rule *Rule) error

	// Update modifies an existing rule.
	// Returns ErrRuleNotFound if the rule does not exist.
	Update(ctx context.Context, rule *Rule) error

	// Delete removes a rule by ID.
	// Returns ErrRuleNotFound if the rule does not exist.
	Delete(ctx context.Context, id string) error

	// SetLastTriggered records when a schedule rule last fired. The
	// in-memory registry and the execution path both depend on this
	// being durable before the next device is evaluated.
	SetLastTriggered(ctx context.Context, id string, triggered time.Time) error

	// SetStatus updates the free-form status fields shown in listings.
	SetStatus(ctx context.Context, id string, status, message string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const ruleColumns = `id, name, description, rule_type, enabled, schedule, target_devices, conditions, actions, priority, last_triggered, status, status_message, created_at, updated_at`

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanRuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}
	return rule, nil
}

// List retrieves all rules, highest priority first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY priority DESC, id`
	return r.queryRules(ctx, query)
}

// ListEnabled retrieves enabled rules, highest priority first.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE enabled = 1 ORDER BY priority DESC, id`
	return r.queryRules(ctx, query)
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	targetsJSON, conditionsJSON, actionsJSON, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		string(rule.Type),
		boolToInt(rule.Enabled),
		nullableTime(rule.Schedule),
		targetsJSON,
		conditionsJSON,
		actionsJSON,
		rule.Priority,
		nullableTime(rule.LastTriggered),
		rule.Status,
		rule.StatusMessage,
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}

	return nil
}

// Update modifies an existing rule.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	targetsJSON, conditionsJSON, actionsJSON, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE rules SET
			name = ?, description = ?, rule_type = ?, enabled = ?, schedule = ?,
			target_devices = ?, conditions = ?, actions = ?, priority = ?,
			last_triggered = ?, status = ?, status_message = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Description,
		string(rule.Type),
		boolToInt(rule.Enabled),
		nullableTime(rule.Schedule),
		targetsJSON,
		conditionsJSON,
		actionsJSON,
		rule.Priority,
		nullableTime(rule.LastTriggered),
		rule.Status,
		rule.StatusMessage,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	return checkRuleAffected(result)
}

// Delete removes a rule by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return checkRuleAffected(result)
}

// SetLastTriggered records when a schedule rule last fired.
func (r *SQLiteRepository) SetLastTriggered(ctx context.Context, id string, triggered time.Time) error {
	now := time.Now().UTC()
	query := `UPDATE rules SET last_triggered = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		triggered.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating last_triggered: %w", err)
	}
	return checkRuleAffected(result)
}

// SetStatus updates the free-form status fields shown in listings.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status, message string) error {
	now := time.Now().UTC()
	query := `UPDATE rules SET status = ?, status_message = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, message, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating rule status: %w", err)
	}
	return checkRuleAffected(result)
}

// queryRules executes a query and returns a slice of rules.
func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}

	return rules, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRuleRow scans a row or rows result into a Rule.
func scanRuleRow(scanner rowScanner) (*Rule, error) {
	var rule Rule
	var ruleType string
	var enabled int
	var schedule, lastTriggered sql.NullString
	var targetsJSON, conditionsJSON, actionsJSON sql.NullString
	var status, statusMessage sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&ruleType,
		&enabled,
		&schedule,
		&targetsJSON,
		&conditionsJSON,
		&actionsJSON,
		&rule.Priority,
		&lastTriggered,
		&status,
		&statusMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Type = RuleType(ruleType)
	rule.Enabled = enabled != 0
	rule.Status = status.String
	rule.StatusMessage = statusMessage.String

	if t, ok := parseNullableTime(schedule); ok {
		rule.Schedule = t
	}
	if t, ok := parseNullableTime(lastTriggered); ok {
		rule.LastTriggered = t
	}

	var parseErr error
	rule.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rule.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if targetsJSON.Valid && targetsJSON.String != "" {
		if err := json.Unmarshal([]byte(targetsJSON.String), &rule.TargetDevices); err != nil {
			return nil, fmt.Errorf("unmarshalling target_devices: %w", err)
		}
	}
	if conditionsJSON.Valid && conditionsJSON.String != "" {
		if err := json.Unmarshal([]byte(conditionsJSON.String), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshalling conditions: %w", err)
		}
	}
	if actionsJSON.Valid && actionsJSON.String != "" {
		if err := json.Unmarshal([]byte(actionsJSON.String), &rule.Actions); err != nil {
			return nil, fmt.Errorf("unmarshalling actions: %w", err)
		}
	}

	return &rule, nil
}

// marshalRuleLists serialises the rule's JSON-backed columns.
func marshalRuleLists(rule *Rule) (targets, conditions, actions string, err error) {
	targetsJSON, err := json.Marshal(rule.TargetDevices)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling target_devices: %w", err)
	}
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(targetsJSON), string(conditionsJSON), string(actionsJSON), nil
}

// checkRuleAffected maps a zero-row update or delete to ErrRuleNotFound.
func checkRuleAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// parseNullableTime parses an optional RFC3339 column value.
func parseNullableTime(v sql.NullString) (*time.Time, bool) {
	if !v.Valid || v.String == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
