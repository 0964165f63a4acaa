package lora

// Field addresses one versioned field of an object.
type Field struct {
	Axis Axis
	Name string
}

func (f Field) String() string {
	return string(f.Axis) + "." + f.Name
}

// Cardinality says how versions of a field combine over time.
type Cardinality int

const (
	// ZeroToOne fields hold at most one value at any instant.
	ZeroToOne Cardinality = iota
	// ZeroToMany fields hold any number of concurrent values and are
	// written as a whole list.
	ZeroToMany
)

var zeroToMany = map[string]struct{}{
	"adresser":              {},
	"opgaver":               {},
	"tilknyttedeitsystemer": {},
}

func (f Field) Cardinality() Cardinality {
	if _, ok := zeroToMany[f.Name]; ok && f.Axis == Relations {
		return ZeroToMany
	}
	return ZeroToOne
}

// Object types served by the store.
type Kind string

const (
	KindOrganisation     Kind = "organisation/organisation"
	KindOrganisationUnit Kind = "organisation/organisationenhed"
	KindOrganisationFunc Kind = "organisation/organisationfunktion"
	KindUser             Kind = "organisation/bruger"
	KindClass            Kind = "klassifikation/klasse"
	KindFacet            Kind = "klassifikation/facet"
)

var AllKinds = []Kind{
	KindOrganisation,
	KindOrganisationUnit,
	KindOrganisationFunc,
	KindUser,
	KindClass,
	KindFacet,
}

// Organisation unit fields.
var (
	OrgUnitProperties = Field{Attributes, "organisationenhedegenskaber"}
	OrgUnitValidity   = Field{States, "organisationenhedgyldighed"}
	OrgUnitParent     = Field{Relations, "overordnet"}
	OrgUnitType       = Field{Relations, "enhedstype"}
	OrgUnitBelongsTo  = Field{Relations, "tilhoerer"}
	OrgUnitAddresses  = Field{Relations, "adresser"}
)

// Organisation function fields, shared by engagements, associations and
// managers.
var (
	FuncProperties      = Field{Attributes, "organisationfunktionegenskaber"}
	FuncValidity        = Field{States, "organisationfunktiongyldighed"}
	FuncType            = Field{Relations, "organisatoriskfunktionstype"}
	FuncAssociatedUnits = Field{Relations, "tilknyttedeenheder"}
	FuncAssociatedUsers = Field{Relations, "tilknyttedebrugere"}
	FuncAssociatedOrgs  = Field{Relations, "tilknyttedeorganisationer"}
	FuncTasks           = Field{Relations, "opgaver"}
	FuncAddresses       = Field{Relations, "adresser"}
)

// Other object fields.
var (
	OrganisationProperties = Field{Attributes, "organisationegenskaber"}
	OrganisationValidity   = Field{States, "organisationgyldighed"}
	OrganisationAuthority  = Field{Relations, "myndighed"}
	UserProperties         = Field{Attributes, "brugeregenskaber"}
	UserValidity           = Field{States, "brugergyldighed"}
	UserBelongsTo          = Field{Relations, "tilhoerer"}
	ClassProperties        = Field{Attributes, "klasseegenskaber"}
	ClassFacet             = Field{Relations, "facet"}
	FacetProperties        = Field{Attributes, "facetegenskaber"}
)

// The fields each object type carries; edits keep every one of them
// bounded to the edited window.
var (
	OrgUnitFields = []Field{OrgUnitProperties, OrgUnitValidity, OrgUnitParent, OrgUnitType, OrgUnitBelongsTo, OrgUnitAddresses}
	FuncFields    = []Field{FuncProperties, FuncValidity, FuncType, FuncAssociatedUnits, FuncAssociatedUsers, FuncAssociatedOrgs, FuncTasks, FuncAddresses}
)

// Well-known value keys.
const (
	KeyUUID      = "uuid"
	KeyURN       = "urn"
	KeyUserKey   = "brugervendtnoegle"
	KeyUnitName  = "enhedsnavn"
	KeyFuncName  = "funktionsnavn"
	KeyOrgName   = "organisationsnavn"
	KeyTitle     = "titel"
	KeyScope     = "omfang"
	KeyExample   = "eksempel"
	KeyIntegrate = "integrationsdata"
	KeyValidity  = "gyldighed"
	KeyObjType   = "objekttype"
)

// Validity state values.
const (
	Active   = "Aktiv"
	Inactive = "Inaktiv"
)
