package mcpserver

// DocumentFormatContract describes the canonical document shape that
// LLM consumers should follow when storing documents.
const DocumentFormatContract = `# Munin Document Format Contract

Every document stored in Munin has four parts.

## Shape

` + "```" + `json
{
  "id": "doc1a2b3c4d",
  "collection": "default",
  "content": "Free-form text. This is what gets embedded for similarity search.",
  "metadata": {
    "source": "meeting-notes",
    "author": "alice"
  }
}
` + "```" + `

## Rules

1. **Content drives search.** Only ` + "`" + `content` + "`" + ` is embedded; metadata is
   stored verbatim and returned with every match, but never embedded.
2. **Collections partition documents.** Queries run against exactly one
   collection. Omitting the collection stores into ` + "`" + `default` + "`" + `.
3. **The collection is chosen up front.** The ` + "`" + `collection` + "`" + ` field routes
   the document; a ` + "`" + `collection` + "`" + ` key inside ` + "`" + `metadata` + "`" + ` is an ordinary
   attribute and does not route anything.
4. **Metadata is a flat JSON object.** String values are preferred;
   other scalars are stringified on the search side.
5. **Ids are assigned by the server** (` + "`" + `doc` + "`" + ` followed by 8 hex chars).
   Do not invent ids when storing new documents.
6. **Encoding** is UTF-8.

## Example

Store a document:

` + "```" + `json
{
  "collection": "runbooks",
  "content": "To rotate the API token, open the admin panel and ...",
  "metadata": {"topic": "operations", "service": "billing"}
}
` + "```" + `

Then find it later with ` + "`" + `search_documents` + "`" + ` and a query such as
"how do I rotate credentials".
`
