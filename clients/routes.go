package clients

// Route names an exchange and routing key
type Route struct {
	Exchange   string `yaml:"exchange" json:"exchange"`
	RoutingKey string `yaml:"routingKey" json:"routingKey"`
}

// RegistryRoutes are the routes of the registry. Platforms, their resources
// and information models live on the platform exchange; smart spaces,
// mappings and resource clean-up have exchanges of their own.
type RegistryRoutes struct {
	Create    Route `yaml:"create"`
	Remove    Route `yaml:"remove"`
	Modify    Route `yaml:"modify"`
	Details   Route `yaml:"details"`
	Resources Route `yaml:"resources"`
	ClearData Route `yaml:"clearData"`

	SmartSpace       SmartSpaceRoutes       `yaml:"smartSpace"`
	InformationModel InformationModelRoutes `yaml:"informationModel"`
	Mapping          MappingRoutes          `yaml:"mapping"`
}

// SmartSpaceRoutes are the registry routes for smart spaces (SSPs)
type SmartSpaceRoutes struct {
	Create  Route `yaml:"create"`
	Remove  Route `yaml:"remove"`
	Modify  Route `yaml:"modify"`
	Details Route `yaml:"details"`
}

// InformationModelRoutes are the registry routes for information models
type InformationModelRoutes struct {
	List     Route `yaml:"list"`
	Register Route `yaml:"register"`
	Delete   Route `yaml:"delete"`
}

// MappingRoutes are the registry routes for information model mappings
type MappingRoutes struct {
	List     Route `yaml:"list"`
	Single   Route `yaml:"single"`
	Register Route `yaml:"register"`
	Delete   Route `yaml:"delete"`
}

// AAMRoutes are the routes of the authentication and authorization manager
type AAMRoutes struct {
	UserDetails   Route `yaml:"userDetails"`
	OwnedServices Route `yaml:"ownedServices"`

	ManageUser       Route `yaml:"manageUser"`
	Revocation       Route `yaml:"revocation"`
	ManagePlatform   Route `yaml:"managePlatform"`
	ManageSmartSpace Route `yaml:"manageSmartSpace"`
}

// FederationRoutes are the routes federation events are published to
type FederationRoutes struct {
	Created Route `yaml:"created"`
	Changed Route `yaml:"changed"`
	Deleted Route `yaml:"deleted"`
}

// Routes groups every route the clients use
type Routes struct {
	Registry   RegistryRoutes   `yaml:"registry"`
	AAM        AAMRoutes        `yaml:"aam"`
	Federation FederationRoutes `yaml:"federation"`
}

const (
	platformExchange   = "symbIoTe.platform"
	sspExchange        = "symbIoTe.ssp"
	mappingExchange    = "symbIoTe.mapping"
	resourceExchange   = "symbIoTe.resource"
	aamExchange        = "symbIoTe.authenticationAuthorizationManager"
	federationExchange = "symbIoTe.federation"
)

func route(exchange, key string) Route {
	return Route{Exchange: exchange, RoutingKey: exchange + "." + key}
}

// DefaultRoutes returns the routes used by a stock deployment
func DefaultRoutes() Routes {
	return Routes{
		Registry: RegistryRoutes{
			Create:    route(platformExchange, "creationRequested"),
			Remove:    route(platformExchange, "removalRequested"),
			Modify:    route(platformExchange, "modificationRequested"),
			Details:   route(platformExchange, "platformDetailsRequested"),
			Resources: route(platformExchange, "resourcesRequested"),
			ClearData: route(resourceExchange, "clearDataRequested"),
			SmartSpace: SmartSpaceRoutes{
				Create:  route(sspExchange, "creationRequested"),
				Remove:  route(sspExchange, "removalRequested"),
				Modify:  route(sspExchange, "modificationRequested"),
				Details: route(sspExchange, "sspDetailsRequested"),
			},
			InformationModel: InformationModelRoutes{
				List:     route(platformExchange, "model.allInformationModelsRequested"),
				Register: route(platformExchange, "model.creationRequested"),
				Delete:   route(platformExchange, "model.removalRequested"),
			},
			Mapping: MappingRoutes{
				List:     route(mappingExchange, "getAllMappingsRequested"),
				Single:   route(mappingExchange, "getSingleMappingRequested"),
				Register: route(mappingExchange, "creationRequested"),
				Delete:   route(mappingExchange, "removalRequested"),
			},
		},
		AAM: AAMRoutes{
			UserDetails:      route(aamExchange, "get.user.details"),
			OwnedServices:    route(aamExchange, "ownedservices.request"),
			ManageUser:       route(aamExchange, "manage.user.request"),
			Revocation:       route(aamExchange, "manage.revocation.request"),
			ManagePlatform:   route(aamExchange, "manage.platform.request"),
			ManageSmartSpace: route(aamExchange, "manage.smartspace.request"),
		},
		Federation: FederationRoutes{
			Created: route(federationExchange, "created"),
			Changed: route(federationExchange, "changed"),
			Deleted: route(federationExchange, "deleted"),
		},
	}
}

// Each calls fn for every route with a dotted name, stopping at the first error
func (r Routes) Each(fn func(name string, route Route) error) error {
	reg := r.Registry
	for _, entry := range []struct {
		name  string
		route Route
	}{
		{"registry.create", reg.Create},
		{"registry.remove", reg.Remove},
		{"registry.modify", reg.Modify},
		{"registry.details", reg.Details},
		{"registry.resources", reg.Resources},
		{"registry.clearData", reg.ClearData},
		{"registry.smartSpace.create", reg.SmartSpace.Create},
		{"registry.smartSpace.remove", reg.SmartSpace.Remove},
		{"registry.smartSpace.modify", reg.SmartSpace.Modify},
		{"registry.smartSpace.details", reg.SmartSpace.Details},
		{"registry.informationModel.list", reg.InformationModel.List},
		{"registry.informationModel.register", reg.InformationModel.Register},
		{"registry.informationModel.delete", reg.InformationModel.Delete},
		{"registry.mapping.list", reg.Mapping.List},
		{"registry.mapping.single", reg.Mapping.Single},
		{"registry.mapping.register", reg.Mapping.Register},
		{"registry.mapping.delete", reg.Mapping.Delete},
		{"aam.userDetails", r.AAM.UserDetails},
		{"aam.ownedServices", r.AAM.OwnedServices},
		{"aam.manageUser", r.AAM.ManageUser},
		{"aam.revocation", r.AAM.Revocation},
		{"aam.managePlatform", r.AAM.ManagePlatform},
		{"aam.manageSmartSpace", r.AAM.ManageSmartSpace},
		{"federation.created", r.Federation.Created},
		{"federation.changed", r.Federation.Changed},
		{"federation.deleted", r.Federation.Deleted},
	} {
		if err := fn(entry.name, entry.route); err != nil {
			return err
		}
	}
	return nil
}
