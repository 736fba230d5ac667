package domain

import "strconv"

type DocType int

const (
	DocTypeProblem         DocType = 10
	DocTypeProblemSolution DocType = 11
	DocTypeProblemList     DocType = 12
	DocTypeDiscussionNode  DocType = 20
	DocTypeDiscussion      DocType = 21
	DocTypeDiscussionReply DocType = 22
	DocTypeContest         DocType = 30
	DocTypeTraining        DocType = 40
	DocTypeUserfile        DocType = 50
	DocTypeHomework        DocType = 60
)

var docTypeNames = map[DocType]string{
	DocTypeProblem:         "problem",
	DocTypeProblemSolution: "problem_solution",
	DocTypeProblemList:     "problem_list",
	DocTypeDiscussionNode:  "discussion_node",
	DocTypeDiscussion:      "discussion",
	DocTypeDiscussionReply: "discussion_reply",
	DocTypeContest:         "contest",
	DocTypeTraining:        "training",
	DocTypeUserfile:        "userfile",
	DocTypeHomework:        "homework",
}

func (t DocType) String() string {
	if name, ok := docTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

func (t DocType) Valid() bool {
	_, ok := docTypeNames[t]
	return ok
}

// ParseDocType accepts either the numeric value or the lower-case name.
func ParseDocType(s string) (DocType, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		t := DocType(n)
		return t, t.Valid()
	}
	for t, name := range docTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}
