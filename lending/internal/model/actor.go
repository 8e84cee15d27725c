package model

type ActorKind string

const (
	ActorAnonymous ActorKind = ""
	ActorClub      ActorKind = "club"
	ActorStudent   ActorKind = "student"
	ActorFaculty   ActorKind = "faculty"
	ActorSystem    ActorKind = "system"
)

// Actor is whoever performs a workflow operation. ID is the club id, the
// student USN or the faculty id depending on Kind; DepartmentID is set for faculty.
type Actor struct {
	Kind         ActorKind `json:"kind"`
	ID           string    `json:"id"`
	DepartmentID string    `json:"departmentId,omitempty"`
}

var SystemActor = Actor{Kind: ActorSystem, ID: "system"}

func ParseActorKind(v string) ActorKind {
	switch k := ActorKind(v); k {
	case ActorClub, ActorStudent, ActorFaculty:
		return k
	}
	return ActorAnonymous
}

func (a Actor) IsClub(clubID string) bool {
	return a.Kind == ActorClub && a.ID != "" && a.ID == clubID
}

func (a Actor) IsFacultyOf(deptID string) bool {
	return a.Kind == ActorFaculty && a.ID != "" && deptID != "" && a.DepartmentID == deptID
}
