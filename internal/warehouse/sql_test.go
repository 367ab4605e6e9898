package warehouse

import (
	"strings"
	"testing"

	"github.com/pmichalski/clocksync/pkg/models"
)

var summarySchema = &models.Schema{Columns: []models.Column{
	{Name: "date", Type: models.ColDate},
	{Name: "user", Type: models.ColString},
	{Name: "duration", Type: models.ColFloat, Nullable: true},
	{Name: "import_timestamp", Type: models.ColTimestamp},
}}

func TestCreateTransientSQLCarriesRowSequence(t *testing.T) {
	got := CreateTransientSQL("summary_stg_abc", summarySchema)

	for _, want := range []string{
		"CREATE TABLE [summary_stg_abc]",
		"[date] DATE NOT NULL",
		"[user] NVARCHAR(MAX) NOT NULL",
		"[duration] FLOAT NULL",
		"[import_timestamp] DATETIME2 NOT NULL",
		"[_row_seq] BIGINT NOT NULL",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestEnsureTargetSQLOmitsRowSequence(t *testing.T) {
	got := EnsureTargetSQL("summary_time_entry_report", summarySchema)

	if !strings.Contains(got, "IF OBJECT_ID(N'summary_time_entry_report', N'U') IS NULL") {
		t.Errorf("missing existence guard in:\n%s", got)
	}
	if strings.Contains(got, "_row_seq") {
		t.Errorf("target table must not carry the row sequence column:\n%s", got)
	}
}

func TestMergeSQLDeduplicatesSourceSide(t *testing.T) {
	got := MergeSQL("summary_time_entry_report", "summary_stg_abc", summarySchema, []string{"date", "user"})

	for _, want := range []string{
		"MERGE INTO [summary_time_entry_report] AS tgt",
		"ROW_NUMBER() OVER (PARTITION BY [date], [user] ORDER BY [_row_seq] DESC)",
		"WHERE rn = 1",
		"ON tgt.[date] = src.[date] AND tgt.[user] = src.[user]",
		"WHEN MATCHED THEN UPDATE SET tgt.[duration] = src.[duration], tgt.[import_timestamp] = src.[import_timestamp]",
		"WHEN NOT MATCHED THEN INSERT ([date], [user], [duration], [import_timestamp])",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	// key columns are never updated in place
	if strings.Contains(got, "tgt.[date] = src.[date],") || strings.Contains(got, "SET tgt.[date]") {
		t.Errorf("merge updates a key column:\n%s", got)
	}
}

func TestMergeSQLWithoutNonKeyColumns(t *testing.T) {
	schema := &models.Schema{Columns: []models.Column{
		{Name: "id", Type: models.ColString},
	}}
	got := MergeSQL("t", "t_stg", schema, []string{"id"})

	if strings.Contains(got, "WHEN MATCHED") {
		t.Errorf("all-key schema must not emit an update clause:\n%s", got)
	}
	if !strings.Contains(got, "WHEN NOT MATCHED THEN INSERT ([id])") {
		t.Errorf("missing insert clause:\n%s", got)
	}
}

func TestTransientNamesDoNotCollide(t *testing.T) {
	a := TransientName("users")
	b := TransientName("users")

	if !strings.HasPrefix(a, "users_stg_") || !strings.HasPrefix(b, "users_stg_") {
		t.Errorf("unexpected prefixes: %q, %q", a, b)
	}
	if a == b {
		t.Errorf("two transient names collided: %q", a)
	}
}
