package querytest

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
)

// Fixture is a client company C and a vendor company V with one worker W,
// plus a request type whose schema covers every field type.
type Fixture struct {
	Client      model.Company
	ClientUser  model.User
	ClientPeer  model.User // same company as ClientUser, did not create anything
	OtherClient model.Company
	OtherUser   model.User

	Vendor         model.Company
	VendorStaff    []model.User // active staff
	InactiveVendor model.User
	OtherVendor    model.Company
	OtherStaff     model.User

	Worker      model.Worker
	OtherWorker model.Worker // employed by OtherVendor

	Homeless  model.User // no company
	Superuser model.User

	RequestType model.RequestType
	Fields      map[string]model.RequestField
}

// Seed inserts the fixture into db.
func Seed(t testing.TB, db *gorm.DB) *Fixture {
	t.Helper()
	f := &Fixture{Fields: map[string]model.RequestField{}}

	f.Client = createCompany(t, db, "Acme Construction", model.CompanyTypeClient)
	f.OtherClient = createCompany(t, db, "Globex Retail", model.CompanyTypeClient)
	f.Vendor = createCompany(t, db, "Reliable Labour", model.CompanyTypeVendor)
	f.OtherVendor = createCompany(t, db, "Fast Hands", model.CompanyTypeVendor)

	f.ClientUser = createUser(t, db, "carol", &f.Client.ID, true)
	f.ClientPeer = createUser(t, db, "chris", &f.Client.ID, true)
	f.OtherUser = createUser(t, db, "gina", &f.OtherClient.ID, true)
	f.VendorStaff = []model.User{
		createUser(t, db, "victor", &f.Vendor.ID, true),
		createUser(t, db, "vera", &f.Vendor.ID, true),
	}
	f.InactiveVendor = createUser(t, db, "vince", &f.Vendor.ID, false)
	f.OtherStaff = createUser(t, db, "frank", &f.OtherVendor.ID, true)
	f.Homeless = createUser(t, db, "nobody", nil, true)

	f.Superuser = model.User{Name: "root", IsActive: true, IsSuperuser: true}
	require.NoError(t, db.Create(&f.Superuser).Error)

	f.Worker = model.Worker{Name: "Walter", CompanyID: f.Vendor.ID}
	require.NoError(t, db.Create(&f.Worker).Error)
	f.OtherWorker = model.Worker{Name: "Wanda", CompanyID: f.OtherVendor.ID}
	require.NoError(t, db.Create(&f.OtherWorker).Error)

	f.RequestType = model.RequestType{Name: "Overtime", Code: "overtime", IsActive: true}
	require.NoError(t, db.Create(&f.RequestType).Error)

	fields := []model.RequestField{
		{Key: "hours", Label: "Hours", Type: model.FieldTypeNumber, IsRequired: true, SortOrder: 1},
		{Key: "site", Label: "Site", Type: model.FieldTypeText, SortOrder: 2},
		{Key: "start_date", Label: "Start date", Type: model.FieldTypeDate, SortOrder: 3},
		{Key: "night", Label: "Night shift", Type: model.FieldTypeBool, SortOrder: 4},
		{Key: "shift", Label: "Shift", Type: model.FieldTypeChoice, SortOrder: 5,
			Options: []string{"morning", "evening"}},
		{Key: "extra", Label: "Extra", Type: model.FieldTypeJSON, SortOrder: 6},
		{Key: "legacy", Label: "Legacy code", Type: model.FieldTypeText, IsRequired: true, SortOrder: 7},
	}
	for i := range fields {
		fields[i].RequestTypeID = f.RequestType.ID
		fields[i].IsActive = fields[i].Key != "legacy"
		require.NoError(t, db.Create(&fields[i]).Error)
		f.Fields[fields[i].Key] = fields[i]
	}
	return f
}

// VendorStaffIDs returns the ids of the active vendor staff.
func (f *Fixture) VendorStaffIDs() []uint {
	return lo.Map(f.VendorStaff, func(u model.User, _ int) uint { return u.ID })
}

func createCompany(t testing.TB, db *gorm.DB, name string, typ model.CompanyType) model.Company {
	c := model.Company{Name: name, Type: typ, IsActive: true}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func createUser(t testing.TB, db *gorm.DB, name string, companyID *uint, active bool) model.User {
	u := model.User{Name: name, CompanyID: companyID, IsActive: active}
	require.NoError(t, db.Create(&u).Error)
	return u
}
