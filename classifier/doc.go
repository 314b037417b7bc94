// Package classifier matches free-form requests against a configured set of
// intents using a generation unit for the verdict. Because the classifying
// unit is just an llm.Unit, a parallel voting workflow can stand in for a
// single model to raise classification confidence.
package classifier
