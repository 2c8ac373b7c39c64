package flight

import "fmt"

// Keys used to reference entities in the discovery API. These are used both as
// query parameter names and as field names in the flight command
const (
	ProjectKey    = "project_id"
	AssetKey      = "asset_id"
	ConnectionKey = "connection_id"
)

// Entity is anything that can be referenced using the discovery API. The key is
// the API field name used to reference this kind of entity, the ID identifies
// the specific instance
type Entity struct {
	key string
	id  string
}

// Key returns the API field name for this type of entity, e.g. "asset_id"
func (e Entity) Key() string {
	return e.key
}

// ID returns the identifier of the entity
func (e Entity) ID() string {
	return e.id
}

func newEntity(key, id string) (Entity, error) {
	if id == "" {
		return Entity{}, &ConfigError{Key: key, Reason: "must not be empty"}
	}

	// dot segments are dropped when the request URL is resolved
	if id == "." || id == ".." {
		return Entity{}, &ConfigError{Key: key, Reason: fmt.Sprintf("%q is not a valid id", id)}
	}

	return Entity{key: key, id: id}, nil
}

// Project is the container that defines data assets and connections
type Project struct {
	Entity
}

// NewProject creates a reference to a project
func NewProject(id string) (Project, error) {
	e, err := newEntity(ProjectKey, id)
	if err != nil {
		return Project{}, err
	}

	return Project{Entity: e}, nil
}

// AssetRef references something defined within a project. Data assets and
// connections are both AssetRefs, they differ only in their key. The project is
// held by value, the AssetRef only ever reads its key and ID
type AssetRef struct {
	Entity
	project Project
}

// NewDataAsset creates a reference to a data asset within a project
func NewDataAsset(id string, project Project) (AssetRef, error) {
	return newAssetRef(AssetKey, id, project)
}

// NewConnection creates a reference to a connection within a project
func NewConnection(id string, project Project) (AssetRef, error) {
	return newAssetRef(ConnectionKey, id, project)
}

func newAssetRef(key, id string, project Project) (AssetRef, error) {
	if project.ID() == "" {
		return AssetRef{}, &ConfigError{Key: ProjectKey, Reason: "must not be empty"}
	}

	e, err := newEntity(key, id)
	if err != nil {
		return AssetRef{}, err
	}

	return AssetRef{Entity: e, project: project}, nil
}

// Container returns the project that defines this asset
func (a AssetRef) Container() Project {
	return a.project
}

// IsDataAsset returns true if this references a data asset
func (a AssetRef) IsDataAsset() bool {
	return a.key == AssetKey
}

// IsConnection returns true if this references a connection
func (a AssetRef) IsConnection() bool {
	return a.key == ConnectionKey
}
