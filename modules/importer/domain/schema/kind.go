package schema

// Kind names a reference table. Values are plural because they key the report's master_data_created map.
type Kind string

const (
	Departments    Kind = "departments"
	SubDepartments Kind = "sub_departments"
	Positions      Kind = "positions"
	Projects       Kind = "projects"
	Locations      Kind = "locations"
	Providers      Kind = "providers"
	Plans          Kind = "plans"
	Categories     Kind = "categories"
	Items          Kind = "items"
	Vendors        Kind = "vendors"
	// Employees is lookup-only: rows name an existing employee by code.
	Employees Kind = "employees"
)

var kindParents = map[Kind]Kind{
	SubDepartments: Departments,
	Plans:          Providers,
	Items:          Categories,
}

var knownKinds = map[Kind]bool{
	Departments: true, SubDepartments: true, Positions: true, Projects: true, Locations: true,
	Providers: true, Plans: true, Categories: true, Items: true, Vendors: true, Employees: true,
}

func (k Kind) Known() bool {
	return knownKinds[k]
}

// Parent reports the kind that scopes k, if any.
func (k Kind) Parent() (Kind, bool) {
	p, ok := kindParents[k]
	return p, ok
}

// Level is 0 for root kinds and 1 for kinds scoped by a parent.
func (k Kind) Level() int {
	if _, ok := kindParents[k]; ok {
		return 1
	}
	return 0
}
