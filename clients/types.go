package clients

// Platform is a platform as stored by the registry
type Platform struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Description          []string              `json:"description,omitempty"`
	InterworkingServices []InterworkingService `json:"interworkingServices,omitempty"`
	Enabler              bool                  `json:"isEnabler"`
}

// InterworkingService is an endpoint a platform exposes
type InterworkingService struct {
	URL                string `json:"url"`
	InformationModelID string `json:"informationModelId"`
}

// PlatformRegistryResponse is the registry's answer to platform requests
type PlatformRegistryResponse struct {
	Status  int       `json:"status"`
	Message string    `json:"message,omitempty"`
	Body    *Platform `json:"body,omitempty"`
}

// Credentials identify a user
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// OperationType selects what a user management request does
type OperationType string

const (
	OperationCreate    OperationType = "CREATE"
	OperationUpdate    OperationType = "UPDATE"
	OperationDelete    OperationType = "DELETE"
	OperationRead      OperationType = "READ"
	OperationForceRead OperationType = "FORCE_READ"
)

// UserRole is the role of an account
type UserRole string

const (
	RoleUser         UserRole = "USER"
	RoleServiceOwner UserRole = "SERVICE_OWNER"
	RoleNull         UserRole = "NULL"
)

// AccountStatus is the state of an account
type AccountStatus string

const (
	AccountActive          AccountStatus = "ACTIVE"
	AccountNew             AccountStatus = "NEW"
	AccountConsentBlocked  AccountStatus = "CONSENT_BLOCKED"
	AccountActivityBlocked AccountStatus = "ACTIVITY_BLOCKED"
)

// UserDetails describes an account held by the AAM
type UserDetails struct {
	Credentials                 Credentials       `json:"credentials"`
	RecoveryMail                string            `json:"recoveryMail"`
	Role                        UserRole          `json:"role"`
	Status                      AccountStatus     `json:"status"`
	Attributes                  map[string]string `json:"attributes"`
	Clients                     map[string]string `json:"clients"`
	ServiceConsent              bool              `json:"serviceConsent"`
	AnalyticsAndResearchConsent bool              `json:"analyticsAndResearchConsent"`
}

// UserManagementRequest is sent to the AAM for account operations
type UserManagementRequest struct {
	AdministratorCredentials Credentials   `json:"administratorCredentials"`
	UserCredentials          Credentials   `json:"userCredentials"`
	UserDetails              UserDetails   `json:"userDetails"`
	OperationType            OperationType `json:"operationType"`
}

// UserDetailsResponse is the AAM's answer to a user details request
type UserDetailsResponse struct {
	HTTPStatus  int         `json:"httpStatus"`
	UserDetails UserDetails `json:"userDetails"`
}

// OwnedService is a service registered by a service owner
type OwnedService struct {
	ServiceInstanceID                     string `json:"serviceInstanceId"`
	InstanceFriendlyName                  string `json:"instanceFriendlyName"`
	OwnedServiceType                      string `json:"ownedServiceType"`
	PlatformInterworkingInterfaceAddress  string `json:"platformInterworkingInterfaceAddress,omitempty"`
	SmartSpaceExternalInterworkingAddress string `json:"externalAddress,omitempty"`
}

// Federation groups platforms that share resources
type Federation struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Public  bool               `json:"public"`
	Members []FederationMember `json:"members"`
}

// FederationMember is a platform taking part in a federation
type FederationMember struct {
	PlatformID      string `json:"platformId"`
	InterworkingURL string `json:"interworkingServiceURL"`
}

// SmartSpace is a smart space (SSP) as stored by the registry
type SmartSpace struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Description          []string              `json:"description,omitempty"`
	InterworkingServices []InterworkingService `json:"interworkingServices,omitempty"`
}

// SmartSpaceRegistryResponse is the registry's answer to smart space requests
type SmartSpaceRegistryResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message,omitempty"`
	Body    *SmartSpace `json:"body,omitempty"`
}

// InformationModel describes the semantics of the resources a platform offers
type InformationModel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	URI       string `json:"uri"`
	RDF       string `json:"rdf,omitempty"`
	RDFFormat string `json:"rdfFormat,omitempty"`
}

// InformationModelRequest carries a model to register or delete
type InformationModelRequest struct {
	Body InformationModel `json:"body"`
}

// InformationModelResponse is the registry's answer to a model request
type InformationModelResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message,omitempty"`
	Body    *InformationModel `json:"body,omitempty"`
}

// InformationModelListResponse lists the registered information models
type InformationModelListResponse struct {
	Status  int                `json:"status"`
	Message string             `json:"message,omitempty"`
	Body    []InformationModel `json:"body"`
}

// OntologyMapping maps one information model onto another
type OntologyMapping struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Owner              string `json:"owner"`
	SourceModelID      string `json:"sourceModelId"`
	DestinationModelID string `json:"destinationModelId"`
	Definition         string `json:"definition,omitempty"`
}

// GetAllMappings asks for every registered mapping
type GetAllMappings struct {
	IncludeDefinitions bool `json:"includeMappingDefinitions"`
}

// GetSingleMapping asks for one mapping by id
type GetSingleMapping struct {
	IncludeDefinition bool   `json:"includeMappingDefinition"`
	MappingID         string `json:"mappingId"`
}

// MappingListResponse is the registry's answer to mapping queries
type MappingListResponse struct {
	Status  int               `json:"status"`
	Message string            `json:"message,omitempty"`
	Body    []OntologyMapping `json:"body"`
}

// InfoModelMappingRequest carries a mapping to register or delete
type InfoModelMappingRequest struct {
	Body OntologyMapping `json:"body"`
}

// InfoModelMappingResponse is the registry's answer to a mapping request
type InfoModelMappingResponse struct {
	Status  int              `json:"status"`
	Message string           `json:"message,omitempty"`
	Body    *OntologyMapping `json:"body,omitempty"`
}

// CoreResourceRegistryRequest asks for the resources of a platform
type CoreResourceRegistryRequest struct {
	PlatformID string `json:"platformId"`
	Body       string `json:"body,omitempty"`
}

// Resource is a resource registered in the core
type Resource struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Description            []string `json:"description,omitempty"`
	InterworkingServiceURL string   `json:"interworkingServiceURL"`
}

// ResourceListResponse lists the resources of a platform
type ResourceListResponse struct {
	Status  int        `json:"status"`
	Message string     `json:"message,omitempty"`
	Body    []Resource `json:"body"`
}

// ClearDataRequest asks the registry to drop every resource of a platform.
// The platform id travels as the request body.
type ClearDataRequest struct {
	PlatformID string `json:"body"`
}

// ClearDataResponse is the registry's answer to a clear data request
type ClearDataResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// ManagementStatus is the AAM's verdict on a management request
type ManagementStatus string

const (
	ManagementOK             ManagementStatus = "OK"
	ManagementUsernameExists ManagementStatus = "USERNAME_EXISTS"
	ManagementPlatformExists ManagementStatus = "PLATFORM_EXISTS"
	ManagementError          ManagementStatus = "ERROR"
)

// CredentialType names whose credentials a revocation request carries
type CredentialType string

const (
	CredentialUser  CredentialType = "USER"
	CredentialAdmin CredentialType = "ADMIN"
	CredentialNull  CredentialType = "NULL"
)

// RevocationRequest revokes a certificate or token
type RevocationRequest struct {
	Credentials           Credentials    `json:"credentials"`
	CredentialType        CredentialType `json:"credentialType"`
	CertificateCommonName string         `json:"certificateCommonName,omitempty"`
	CertificatePEM        string         `json:"certificatePEMString,omitempty"`
	HomeToken             string         `json:"homeTokenString,omitempty"`
	ForeignToken          string         `json:"foreignTokenString,omitempty"`
}

// RevocationResponse is the AAM's answer to a revocation request. Status is
// the name of an HTTP status, such as OK or BAD_REQUEST.
type RevocationResponse struct {
	Revoked bool   `json:"revoked"`
	Status  string `json:"status"`
}

// Succeeded reports whether the credentials were revoked
func (r RevocationResponse) Succeeded() bool {
	return r.Revoked && r.Status == "OK"
}

// PlatformManagementRequest registers, updates or deletes a platform in the AAM
type PlatformManagementRequest struct {
	AAMOwnerCredentials       Credentials   `json:"aamOwnerCredentials"`
	PlatformOwnerCredentials  Credentials   `json:"platformOwnerCredentials"`
	InterworkingInterfaceAddr string        `json:"platformInterworkingInterfaceAddress"`
	InstanceFriendlyName      string        `json:"platformInstanceFriendlyName"`
	InstanceID                string        `json:"platformInstanceId"`
	OperationType             OperationType `json:"operationType"`
}

// PlatformManagementResponse is the AAM's answer to a platform management request
type PlatformManagementResponse struct {
	PlatformID         string           `json:"platformId"`
	RegistrationStatus ManagementStatus `json:"registrationStatus"`
}

// SmartSpaceManagementRequest registers, updates or deletes a smart space in the AAM
type SmartSpaceManagementRequest struct {
	AAMOwnerCredentials      Credentials   `json:"aamOwnerCredentials"`
	ServiceOwnerCredentials  Credentials   `json:"serviceOwnerCredentials"`
	ExternalAddress          string        `json:"gatewayAddress"`
	SiteLocalAddress         string        `json:"siteLocalAddress"`
	InstanceFriendlyName     string        `json:"instanceFriendlyName"`
	OperationType            OperationType `json:"operationType"`
	InstanceID               string        `json:"instanceId"`
	ExposingSiteLocalAddress bool          `json:"exposingSiteLocalAddress"`
}

// SmartSpaceManagementResponse is the AAM's answer to a smart space management request
type SmartSpaceManagementResponse struct {
	SmartSpaceID     string           `json:"smartSpaceId"`
	ManagementStatus ManagementStatus `json:"managementStatus"`
}

// errorResponse is the container services use for failures
type errorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
