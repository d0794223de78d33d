package persistence

import (
	"fmt"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

// KindTable maps a reference kind onto a table. Parent is empty for root kinds.
type KindTable struct {
	Table  string
	ID     string
	Name   string
	Parent string
}

// EntityTable maps an entity onto a table. Columns is keyed by field name; fields without a
// column are not written.
type EntityTable struct {
	Table   string
	ID      string
	Columns map[string]string
	Key     []string
}

func (e EntityTable) column(field string) string {
	if c, ok := e.Columns[field]; ok {
		return c
	}
	return ""
}

// KeyColumns returns the natural key columns in key order.
func (e EntityTable) KeyColumns() []string {
	cols := make([]string, len(e.Key))
	for i, f := range e.Key {
		cols[i] = e.column(f)
	}
	return cols
}

type Mapping struct {
	Kinds    map[schema.Kind]KindTable
	Entities map[string]EntityTable
}

func (m Mapping) kind(kind schema.Kind) (KindTable, bool) {
	t, ok := m.Kinds[kind]
	return t, ok
}

func (m Mapping) entity(entity string) (EntityTable, bool) {
	t, ok := m.Entities[entity]
	return t, ok
}

// Validate checks that every entity key field has a column.
func (m Mapping) Validate() error {
	for name, e := range m.Entities {
		if e.Table == "" || e.ID == "" {
			return fmt.Errorf("entity %s: table and id column are required", name)
		}
		if len(e.Key) == 0 {
			return fmt.Errorf("entity %s: natural key is required", name)
		}
		for _, f := range e.Key {
			if e.column(f) == "" {
				return fmt.Errorf("entity %s: key field %q has no column", name, f)
			}
		}
	}
	for kind, k := range m.Kinds {
		if k.Table == "" || k.ID == "" || k.Name == "" {
			return fmt.Errorf("kind %s: table, id and name columns are required", kind)
		}
		if _, scoped := kind.Parent(); scoped && k.Parent == "" {
			return fmt.Errorf("kind %s: parent column is required", kind)
		}
	}
	return nil
}

// DefaultMapping matches schema/importer-schema.sql.
func DefaultMapping() Mapping {
	return Mapping{
		Kinds: map[schema.Kind]KindTable{
			schema.Departments:    {Table: "departments", ID: "id", Name: "name"},
			schema.SubDepartments: {Table: "sub_departments", ID: "id", Name: "name", Parent: "department_id"},
			schema.Positions:      {Table: "positions", ID: "id", Name: "name"},
			schema.Projects:       {Table: "projects", ID: "id", Name: "name"},
			schema.Locations:      {Table: "locations", ID: "id", Name: "name"},
			schema.Providers:      {Table: "sim_providers", ID: "id", Name: "name"},
			schema.Plans:          {Table: "sim_plans", ID: "id", Name: "name", Parent: "provider_id"},
			schema.Categories:     {Table: "asset_categories", ID: "id", Name: "name"},
			schema.Items:          {Table: "asset_items", ID: "id", Name: "name", Parent: "category_id"},
			schema.Vendors:        {Table: "vendors", ID: "id", Name: "name"},
			schema.Employees:      {Table: "employees", ID: "id", Name: "code"},
		},
		Entities: map[string]EntityTable{
			schema.EntityEmployees: {
				Table: "employees",
				ID:    "id",
				Columns: map[string]string{
					"code":           "code",
					"name":           "name",
					"first_name":     "first_name",
					"last_name":      "last_name",
					"email":          "email",
					"mobile":         "mobile",
					"department":     "department_id",
					"sub_department": "sub_department_id",
					"position":       "position_id",
					"project":        "project_id",
					"location":       "location_id",
					"manager":        "manager_id",
					"joining_date":   "joining_date",
					"status":         "status",
				},
				Key: []string{"code"},
			},
			schema.EntityAssets: {
				Table: "assets",
				ID:    "id",
				Columns: map[string]string{
					"tag":             "tag",
					"name":            "name",
					"category":        "category_id",
					"item":            "item_id",
					"serial_number":   "serial_number",
					"model":           "model",
					"vendor":          "vendor_id",
					"location":        "location_id",
					"assigned_to":     "assigned_to",
					"purchase_date":   "purchase_date",
					"warranty_expiry": "warranty_expiry",
					"cost":            "cost",
					"status":          "status",
				},
				Key: []string{"tag"},
			},
			schema.EntitySimCards: {
				Table: "sim_cards",
				ID:    "id",
				Columns: map[string]string{
					"account_number":  "account_number",
					"service_number":  "service_number",
					"sim_number":      "sim_number",
					"provider":        "provider_id",
					"plan":            "plan_id",
					"employee":        "employee_id",
					"department":      "department_id",
					"activation_date": "activation_date",
					"monthly_cost":    "monthly_cost",
					"status":          "status",
				},
				Key: []string{"account_number", "service_number"},
			},
		},
	}
}
