package schema

const (
	EntityEmployees = "employees"
	EntityAssets    = "assets"
	EntitySimCards  = "sim_cards"
)

// EmployeesSchema describes the employee roster spreadsheet.
func EmployeesSchema() *Descriptor {
	return &Descriptor{
		Entity:  EntityEmployees,
		Aliases: []string{"employee", "staff"},
		Fields: []Field{
			{Name: "code", Type: String, Required: true, Synonyms: []string{"employee_code", "emp_code", "employee_id", "emp_id", "staff_id", "emp_no"}},
			{Name: "name", Type: String, Required: true, Synonyms: []string{"full_name", "employee_name", "emp_name"}},
			{Name: "first_name", Type: String, Synonyms: []string{"firstname", "given_name"}},
			{Name: "last_name", Type: String, Synonyms: []string{"lastname", "surname", "family_name"}},
			{Name: "email", Type: Email, Synonyms: []string{"email_address", "e_mail", "mail", "official_email"}},
			{Name: "mobile", Type: NumericText, Synonyms: []string{"phone", "mobile_number", "mobile_no", "contact_number", "phone_number", "contact_no", "cell"}},
			{Name: "department", Type: String, Synonyms: []string{"dept", "department_name"}},
			{Name: "sub_department", Type: String, Synonyms: []string{"sub_dept", "subdepartment", "sub_department_name", "section"}},
			{Name: "position", Type: String, Synonyms: []string{"designation", "title", "job_title", "role"}},
			{Name: "project", Type: String, Synonyms: []string{"project_name"}},
			{Name: "location", Type: String, Synonyms: []string{"office", "site", "branch"}},
			{Name: "manager", Type: String, Synonyms: []string{"manager_code", "reports_to", "line_manager"}},
			{Name: "joining_date", Type: Date, Synonyms: []string{"date_of_joining", "doj", "join_date", "start_date", "hire_date"}},
			{Name: "status", Type: Enum, Allowed: []string{"active", "inactive", "on_leave", "terminated"}, Synonyms: []string{"employee_status", "employment_status"}},
		},
		References: []Reference{
			{Field: "department", Kind: Departments, OnMissing: Create},
			{Field: "sub_department", Kind: SubDepartments, ParentField: "department", OnMissing: Create},
			{Field: "position", Kind: Positions, OnMissing: Create},
			{Field: "project", Kind: Projects, OnMissing: Create},
			{Field: "location", Kind: Locations, OnMissing: Create},
			{Field: "manager", Kind: Employees, OnMissing: Null},
		},
		NaturalKey: []string{"code"},
		SplitName:  &SplitName{Source: "name", First: "first_name", Last: "last_name"},
	}
}

// AssetsSchema describes the asset register spreadsheet.
func AssetsSchema() *Descriptor {
	return &Descriptor{
		Entity:  EntityAssets,
		Aliases: []string{"asset", "inventory"},
		Fields: []Field{
			{Name: "tag", Type: String, Required: true, Synonyms: []string{"asset_tag", "tag_number", "tag_no", "asset_code", "asset_id"}},
			{Name: "name", Type: String, Required: true, Synonyms: []string{"asset_name", "description"}},
			{Name: "category", Type: String, Required: true, Synonyms: []string{"asset_category", "category_name", "type"}},
			{Name: "item", Type: String, Required: true, Synonyms: []string{"item_name", "sub_category", "asset_item"}},
			{Name: "serial_number", Type: NumericText, Synonyms: []string{"serial", "serial_no", "sn", "imei"}},
			{Name: "model", Type: String, Synonyms: []string{"model_name", "model_no"}},
			{Name: "vendor", Type: String, Synonyms: []string{"supplier", "vendor_name"}},
			{Name: "location", Type: String, Synonyms: []string{"office", "site", "branch"}},
			{Name: "assigned_to", Type: String, Synonyms: []string{"employee_code", "assignee", "custodian", "emp_code"}},
			{Name: "purchase_date", Type: Date, Synonyms: []string{"date_of_purchase", "purchased_on", "acquisition_date"}},
			{Name: "warranty_expiry", Type: Date, Synonyms: []string{"warranty_end", "warranty_date", "warranty_expiry_date"}},
			{Name: "cost", Type: Decimal, Synonyms: []string{"price", "purchase_cost", "amount", "value"}},
			{Name: "status", Type: Enum, Allowed: []string{"available", "assigned", "in_repair", "retired"}, Synonyms: []string{"asset_status", "condition"}},
		},
		References: []Reference{
			{Field: "category", Kind: Categories, OnMissing: Create},
			{Field: "item", Kind: Items, ParentField: "category", OnMissing: Create},
			{Field: "vendor", Kind: Vendors, OnMissing: Create},
			{Field: "location", Kind: Locations, OnMissing: Create},
			{Field: "assigned_to", Kind: Employees, OnMissing: Reject},
		},
		NaturalKey: []string{"tag"},
	}
}

// SimCardsSchema describes the SIM card register spreadsheet.
func SimCardsSchema() *Descriptor {
	return &Descriptor{
		Entity:  EntitySimCards,
		Aliases: []string{"sim_card", "simcards", "sims", "sim"},
		Fields: []Field{
			{Name: "account_number", Type: NumericText, Required: true, Synonyms: []string{"account_no", "account", "acc_no", "account_num"}},
			{Name: "service_number", Type: NumericText, Required: true, Synonyms: []string{"service_no", "msisdn", "mobile_number", "mobile_no", "phone_number", "number"}},
			{Name: "sim_number", Type: NumericText, Synonyms: []string{"iccid", "sim_no", "sim_serial"}},
			{Name: "provider", Type: String, Required: true, Synonyms: []string{"operator", "carrier", "network", "provider_name"}},
			{Name: "plan", Type: String, Synonyms: []string{"package", "tariff", "plan_name", "bundle"}},
			{Name: "employee", Type: String, Synonyms: []string{"employee_code", "emp_code", "assigned_to", "user"}},
			{Name: "department", Type: String, Synonyms: []string{"dept", "department_name"}},
			{Name: "activation_date", Type: Date, Synonyms: []string{"activated_on", "issue_date", "date_of_issue"}},
			{Name: "monthly_cost", Type: Decimal, Synonyms: []string{"monthly_rent", "rental", "cost", "monthly_charges"}},
			{Name: "status", Type: Enum, Allowed: []string{"active", "suspended", "terminated"}, Synonyms: []string{"sim_status", "line_status"}},
		},
		References: []Reference{
			{Field: "provider", Kind: Providers, OnMissing: Create},
			{Field: "plan", Kind: Plans, ParentField: "provider", OnMissing: Create},
			{Field: "department", Kind: Departments, OnMissing: Create},
			{Field: "employee", Kind: Employees, OnMissing: Null},
		},
		NaturalKey: []string{"account_number", "service_number"},
	}
}
