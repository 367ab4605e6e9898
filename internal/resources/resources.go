// Package resources declares the four synced resource types: what endpoint
// they come from, their flat schemas, and how they merge into the warehouse.
package resources

import "github.com/pmichalski/clocksync/pkg/models"

func col(name string, t models.ColumnType) models.Column {
	return models.Column{Name: name, Type: t, Nullable: true}
}

func req(name string, t models.ColumnType) models.Column {
	return models.Column{Name: name, Type: t}
}

// Users is the workspace member snapshot. Memberships come back as an array;
// only the first membership's rate and status are kept.
var Users = models.ResourceSpec{
	Name:        "users",
	Endpoint:    "users",
	TargetTable: "users",
	MergeKeys:   []string{"id"},
	Schema: &models.Schema{Columns: []models.Column{
		req("id", models.ColString),
		req("email", models.ColString),
		req("name", models.ColString),
		req("status", models.ColString),
		col("profilepicture", models.ColString),
		req("activeworkspace", models.ColString),
		req("defaultworkspace", models.ColString),
		col("settings_weekstart", models.ColString),
		col("settings_timezone", models.ColString),
		col("settings_dateformat", models.ColString),
		col("settings_timeformat", models.ColString),
		col("settings_sendnewsletter", models.ColBool),
		col("settings_weeklyupdates", models.ColBool),
		col("settings_longrunning", models.ColBool),
		col("settings_scheduledreports", models.ColBool),
		col("settings_approval", models.ColBool),
		col("settings_pto", models.ColBool),
		col("settings_alerts", models.ColBool),
		col("settings_onboarding", models.ColBool),
		col("settings_projectpickerspecialfilter", models.ColBool),
		col("memberships_hourlyrate_amount", models.ColFloat),
		col("memberships_hourlyrate_currency", models.ColString),
		col("memberships_membershipstatus", models.ColString),
		col("memberships_membershiptype", models.ColString),
		col("memberships_targetid", models.ColString),
		req("import_timestamp", models.ColTimestamp),
	}},
}

// Projects is the project snapshot. timeestimate_estimate arrives as a
// millisecond count and is stored as decimal hours.
var Projects = models.ResourceSpec{
	Name:        "projects",
	Endpoint:    "projects",
	TargetTable: "projects",
	MergeKeys:   []string{"id"},
	Schema: &models.Schema{Columns: []models.Column{
		req("id", models.ColString),
		req("name", models.ColString),
		req("workspaceid", models.ColString),
		col("clientid", models.ColString),
		req("archived", models.ColBool),
		req("billable", models.ColBool),
		req("public", models.ColBool),
		col("color", models.ColString),
		col("note", models.ColString),
		col("hourlyrate_amount", models.ColFloat),
		col("hourlyrate_currency", models.ColString),
		col("estimate_estimate", models.ColString),
		col("estimate_type", models.ColString),
		{Name: "timeestimate_estimate", Type: models.ColFloat, Nullable: true, Duration: true},
		col("timeestimate_type", models.ColString),
		req("import_timestamp", models.ColTimestamp),
	}},
}

// Clients is the client snapshot.
var Clients = models.ResourceSpec{
	Name:        "clients",
	Endpoint:    "clients",
	TargetTable: "clients",
	MergeKeys:   []string{"id"},
	Schema: &models.Schema{Columns: []models.Column{
		req("id", models.ColString),
		req("name", models.ColString),
		req("workspaceid", models.ColString),
		req("archived", models.ColBool),
		col("address", models.ColString),
		col("note", models.ColString),
		req("import_timestamp", models.ColTimestamp),
	}},
}

// Summary is the day-windowed time report. Its merge key is the report grain:
// one row per day, user, project, client and tag combination. Client and tags
// are human-readable names rather than identifiers; renames upstream split or
// merge historical rows at this grain, which downstream consumers rely on.
var Summary = models.ResourceSpec{
	Name:        "summary",
	DayWindowed: true,
	TargetTable: "summary_time_entry_report",
	MergeKeys:   []string{"date", "user", "project", "client", "tags"},
	Schema: &models.Schema{Columns: []models.Column{
		req("date", models.ColDate),
		req("user", models.ColString),
		req("project", models.ColString),
		req("client", models.ColString),
		req("tags", models.ColString),
		{Name: "duration", Type: models.ColFloat, Nullable: true, Duration: true},
		col("amount", models.ColFloat),
		req("import_timestamp", models.ColTimestamp),
	}},
}

// All lists every synced resource in sync order.
var All = []models.ResourceSpec{Users, Projects, Clients, Summary}

// ByName returns the resource spec with the given name.
func ByName(name string) (models.ResourceSpec, bool) {
	for _, spec := range All {
		if spec.Name == name {
			return spec, true
		}
	}
	return models.ResourceSpec{}, false
}
