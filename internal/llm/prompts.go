package llm

const extractClaimsPrompt = `Extract factual claims from the passage below.

A claim is a single atomic statement about one subject: a preference, a fact,
a relationship, or a goal. Skip filler, questions, and speculation.

Return a JSON array, no other text. Each element:
{
  "subject_name": "the entity the claim is about",
  "predicate": "a short snake_case relation, e.g. prefers, works_at, located_in, uses, dislikes",
  "object": "the value or entity the predicate points to",
  "confidence": 0.0 to 1.0, how clearly the passage states this
}

Return [] if the passage contains no extractable claims.

Passage:
%s`
